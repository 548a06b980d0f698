// Package study holds the quiz and flashcard review model. It is the single
// place that interprets a generated question's answer key, which arrives in
// inconsistent shapes from the generation service.
package study

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tutorllm/tutorllm/internal/api"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrNoOptions indicates a question without answer options.
	ErrNoOptions = errors.New("question has no options")

	// ErrAnswerUnresolved indicates the answer key matches neither an
	// option letter nor any option's text.
	ErrAnswerUnresolved = errors.New("answer key matches no option")
)

// optionLetter returns the letter labeling option i ("A" for 0).
func optionLetter(i int) string {
	return string(rune('A' + i))
}

// ResolveAnswer maps a question's answer key to the index of the correct
// option. The key may be a bare option letter ("B"), a letter with trailing
// punctuation ("B.", "b)"), or the full option text; all three occur in
// generated quizzes. Letter form wins over text form when both could apply.
func ResolveAnswer(q api.QuizQuestion) (int, error) {
	if len(q.Options) == 0 {
		return 0, ErrNoOptions
	}

	key := strings.TrimSpace(q.Answer)

	// Letter form, possibly decorated: "B", "b.", "(C)".
	letter := strings.Trim(key, "().: ")
	if len(letter) == 1 {
		idx := int(strings.ToUpper(letter)[0] - 'A')
		if idx >= 0 && idx < len(q.Options) {
			return idx, nil
		}
	}

	// Full option text, case-insensitive.
	for i, opt := range q.Options {
		if strings.EqualFold(strings.TrimSpace(opt), key) {
			return i, nil
		}
	}

	// Text prefixed with its own letter: "B. the mitochondria".
	for i, opt := range q.Options {
		prefixed := optionLetter(i) + ". " + strings.TrimSpace(opt)
		if strings.EqualFold(prefixed, key) {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrAnswerUnresolved, q.Answer)
}

// IsCorrect reports whether the selected option index answers q correctly.
func IsCorrect(q api.QuizQuestion, selected int) (bool, error) {
	correct, err := ResolveAnswer(q)
	if err != nil {
		return false, err
	}
	return selected == correct, nil
}

// Result is one graded question.
type Result struct {
	Question api.QuizQuestion
	Selected int  // index into Question.Options, -1 when skipped
	Correct  bool // false when skipped or unresolvable
}

// Score is the outcome of grading a full quiz.
type Score struct {
	Total   int
	Correct int
	Results []Result
}

// Percent returns the score as a 0-100 percentage.
func (s Score) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}

// Grade scores a completed quiz against the recorded selections. Selections
// shorter than the question list leave the remainder skipped. Questions
// whose answer key cannot be resolved count as incorrect rather than
// failing the whole quiz.
func Grade(quiz api.Quiz, selections []int) Score {
	score := Score{
		Total:   len(quiz.Questions),
		Results: make([]Result, 0, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		selected := -1
		if i < len(selections) {
			selected = selections[i]
		}
		r := Result{Question: q, Selected: selected}
		if selected >= 0 {
			if ok, err := IsCorrect(q, selected); err == nil && ok {
				r.Correct = true
				score.Correct++
			}
		}
		score.Results = append(score.Results, r)
	}
	return score
}

// CorrectOption returns the text of q's correct option, labeled with its
// letter, for revealing answers during review.
func CorrectOption(q api.QuizQuestion) (string, error) {
	idx, err := ResolveAnswer(q)
	if err != nil {
		return "", err
	}
	return optionLetter(idx) + ". " + q.Options[idx], nil
}
