// Package prompt asks the operator questions during a run.
package prompt

import (
	"context"
	"errors"
)

var (
	// ErrNoAnswer is returned when a prompter has nothing to answer with.
	ErrNoAnswer = errors.New("prompt: no answer available")
	// ErrNotTerminal is returned when stdin cannot be prompted.
	ErrNotTerminal = errors.New("prompt: stdin is not a terminal")
)

type Prompter interface {
	Confirm(ctx context.Context, message string, def bool) (bool, error)
	// Password reads input without echoing it.
	Password(ctx context.Context, message string) (string, error)
}
