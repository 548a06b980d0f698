// Package cmd wires the command-line interface. The bare command opens the
// interactive chat TUI; subcommands cover one-shot questions, chat history,
// document uploads, study aids, and the local identity cache.
package cmd

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/tutorllm/tutorllm/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "tutorllm",
	Short: "tutorllm - a tutoring assistant for your documents",
	Long: `tutorllm is a terminal client for a document-grounded tutoring service.
Upload study materials, ask questions about them, and generate flashcards
and quizzes. Answers stream in as they are produced.

Running tutorllm without arguments opens the interactive chat.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	engine, err := a.engine()
	if err != nil {
		return err
	}

	model, err := tui.New(ctx, engine)
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}
