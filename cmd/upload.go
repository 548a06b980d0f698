package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadChatID string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents into the knowledge base",
	Long: `Upload sends one or more documents to the server for ingestion.
Ingested documents become part of the knowledge base that answers are
grounded on. With --chat, the uploads are associated with that chat.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadChatID, "chat", "", "associate uploads with an existing chat by ID")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var failed int
	for _, path := range args {
		if err := uploadOne(cmd, a, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("Uploaded %s\n", filepath.Base(path))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

func uploadOne(cmd *cobra.Command, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return a.client.Ingest(cmd.Context(), filepath.Base(path), f, a.email(), uploadChatID)
}
