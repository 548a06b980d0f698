package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/identity"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage saved chats",
	RunE:  runChatsList, // bare "chats" lists
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, newest first",
	RunE:  runChatsList,
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Print a saved chat's full transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsShow,
}

func init() {
	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsShowCmd)
	rootCmd.AddCommand(chatsCmd)
}

func runChatsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := requireIdentity(a.profile); err != nil {
		return err
	}

	chats, err := a.client.ListChats(ctx, a.email())
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}
	if len(chats) == 0 {
		fmt.Println("No saved chats yet.")
		return nil
	}

	for _, c := range chats {
		fmt.Printf("%-36s  %-19s  %s\n", c.ID, formatTime(c.UpdatedAt), c.Title)
	}
	return nil
}

func runChatsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := requireIdentity(a.profile); err != nil {
		return err
	}

	detail, err := a.client.LoadChat(ctx, args[0], a.email())
	if err != nil {
		if errors.Is(err, api.ErrChatNotFound) {
			return fmt.Errorf("no chat with ID %q", args[0])
		}
		return fmt.Errorf("loading chat: %w", err)
	}

	if detail.Title != "" {
		fmt.Printf("# %s\n\n", detail.Title)
	}
	for _, m := range detail.Messages {
		fmt.Printf("%s\n%s\n\n", rolePrefix(m.Role), m.Content)
	}
	return nil
}

func rolePrefix(role string) string {
	if role == "user" {
		return "You:"
	}
	return "Tutor:"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// requireIdentity rejects anonymous use for persistence-only commands.
func requireIdentity(p identity.Profile) error {
	if !p.Persistent() {
		return errors.New("not signed in: run 'tutorllm login' first")
	}
	return nil
}
