package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutorllm/tutorllm/internal/config"
	"github.com/tutorllm/tutorllm/internal/identity"
)

var (
	loginName    string
	loginEmail   string
	loginPicture string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Record your identity for chat persistence",
	Long: `Login caches your profile locally so chats are saved on the server
under your email. Credential issuance itself happens out of band; this
command only records the resulting profile.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached identity",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the cached identity",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "display name")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email chats are saved under (required)")
	loginCmd.Flags().StringVar(&loginPicture, "picture", "", "avatar URL")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func identityStore() (*identity.FileStore, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return identity.NewFileStore(dir), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginEmail == "" {
		return errors.New("--email is required: chats are saved under it")
	}

	store, err := identityStore()
	if err != nil {
		return err
	}

	profile := identity.Profile{
		Name:    loginName,
		Email:   loginEmail,
		Picture: loginPicture,
	}
	if err := store.Save(profile); err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}

	name := profile.Name
	if name == "" {
		name = profile.Email
	}
	fmt.Printf("Signed in as %s. Chats will be saved under %s.\n", name, profile.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := identityStore()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("clearing identity: %w", err)
	}
	fmt.Println("Signed out. New chats will not be saved.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	store, err := identityStore()
	if err != nil {
		return err
	}

	profile, err := store.Profile()
	if err != nil {
		if errors.Is(err, identity.ErrNotSignedIn) {
			fmt.Println("Not signed in.")
			return nil
		}
		return fmt.Errorf("reading identity: %w", err)
	}

	if profile.Name != "" {
		fmt.Printf("Name:  %s\n", profile.Name)
	}
	fmt.Printf("Email: %s\n", profile.Email)
	if profile.Picture != "" {
		fmt.Printf("Picture: %s\n", profile.Picture)
	}
	return nil
}
