package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tutorllm/tutorllm/internal/api"
)

var askChatID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChatID, "chat", "", "continue an existing chat by ID")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("question is empty")
	}

	req := api.QueryRequest{
		Question:  question,
		UserEmail: a.email(),
		ChatID:    askChatID,
	}

	// Print increments as they arrive; the concatenation is the answer.
	var printed bool
	for chunk, err := range a.client.Query(ctx, req) {
		if err != nil {
			if printed {
				fmt.Println()
			}
			if errors.Is(err, api.ErrUnreachable) {
				fmt.Fprintf(os.Stderr, "Cannot reach the server at %s. Is it running?\n", a.cfg.ServerURL)
			}
			return fmt.Errorf("answer stream failed: %w", err)
		}
		fmt.Print(chunk)
		printed = true
	}
	if printed {
		fmt.Println()
	}
	return nil
}
