package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var flashcardsCmd = &cobra.Command{
	Use:   "flashcards <topic>",
	Short: "Generate flashcards for a topic from your documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFlashcards,
}

func init() {
	rootCmd.AddCommand(flashcardsCmd)
}

func runFlashcards(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return errors.New("topic is empty")
	}

	set, err := a.client.Flashcards(ctx, topic)
	if err != nil {
		return fmt.Errorf("generating flashcards: %w", err)
	}
	if len(set.Flashcards) == 0 {
		fmt.Printf("No flashcards could be generated for %q.\n", topic)
		return nil
	}

	fmt.Printf("Flashcards: %s\n\n", set.Topic)
	for i, card := range set.Flashcards {
		fmt.Printf("%d. %s\n   %s\n\n", i+1, card.Front, card.Back)
	}
	return nil
}
