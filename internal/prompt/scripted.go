package prompt

import (
	"context"
	"fmt"
)

// Scripted answers prompts from a queue of bool (Confirm) and string
// (Password) answers.
type Scripted struct {
	answers []any
	// Asked records every prompt message in order.
	Asked []string
}

func NewScripted(answers ...any) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Confirm(_ context.Context, message string, _ bool) (bool, error) {
	answer, err := s.next(message)
	if err != nil {
		return false, err
	}
	v, ok := answer.(bool)
	if !ok {
		return false, fmt.Errorf("prompt %q: expected bool answer, got %T", message, answer)
	}
	return v, nil
}

func (s *Scripted) Password(_ context.Context, message string) (string, error) {
	answer, err := s.next(message)
	if err != nil {
		return "", err
	}
	v, ok := answer.(string)
	if !ok {
		return "", fmt.Errorf("prompt %q: expected string answer, got %T", message, answer)
	}
	return v, nil
}

// Remaining reports how many answers are still queued.
func (s *Scripted) Remaining() int {
	return len(s.answers)
}

func (s *Scripted) next(message string) (any, error) {
	s.Asked = append(s.Asked, message)
	if len(s.answers) == 0 {
		return nil, fmt.Errorf("prompt %q: %w", message, ErrNoAnswer)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}
