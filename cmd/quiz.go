package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/study"
)

var (
	quizCount      int
	quizDifficulty string
	quizAnswers    bool
)

var quizCmd = &cobra.Command{
	Use:   "quiz <topic>",
	Short: "Generate a multiple-choice quiz for a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuiz,
}

func init() {
	quizCmd.Flags().IntVar(&quizCount, "count", 5, "number of questions")
	quizCmd.Flags().StringVar(&quizDifficulty, "difficulty", "medium", "easy, medium, or hard")
	quizCmd.Flags().BoolVar(&quizAnswers, "answers", false, "print the answer key")
	rootCmd.AddCommand(quizCmd)
}

func runQuiz(cmd *cobra.Command, args []string) error {
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

	quiz, err := a.client.GenerateQuiz(ctx, api.QuizRequest{
		Topic:      topic,
		Count:      quizCount,
		Difficulty: quizDifficulty,
	})
	if err != nil {
		return fmt.Errorf("generating quiz: %w", err)
	}
	if len(quiz.Questions) == 0 {
		fmt.Printf("No questions could be generated for %q.\n", topic)
		return nil
	}

	fmt.Printf("Quiz: %s (%s)\n\n", quiz.Topic, quizDifficulty)
	for i, q := range quiz.Questions {
		fmt.Printf("%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			fmt.Printf("   %c. %s\n", 'A'+j, opt)
		}
		fmt.Println()
	}

	if quizAnswers {
		fmt.Println("Answer key:")
		for i, q := range quiz.Questions {
			answer, err := study.CorrectOption(q)
			if err != nil {
				answer = "(unresolved: " + q.Answer + ")"
			}
			fmt.Printf("%d. %s\n", i+1, answer)
		}
	}
	return nil
}
