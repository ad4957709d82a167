package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Terminal prompts on the controlling terminal with huh forms.
type Terminal struct{}

func NewTerminal() *Terminal {
	return &Terminal{}
}

// IsTerminal reports whether stdin is attached to a terminal.
func IsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (t *Terminal) Confirm(ctx context.Context, message string, def bool) (bool, error) {
	if !IsTerminal() {
		return false, ErrNotTerminal
	}
	value := def
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(message).
				Affirmative("Yes").
				Negative("No").
				Value(&value),
		),
	).RunWithContext(ctx)
	if err != nil {
		return false, wrapFormError(err)
	}
	return value, nil
}

func (t *Terminal) Password(ctx context.Context, message string) (string, error) {
	if !IsTerminal() {
		return "", ErrNotTerminal
	}
	var value string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(message).
				EchoMode(huh.EchoModePassword).
				Value(&value),
		),
	).RunWithContext(ctx)
	if err != nil {
		return "", wrapFormError(err)
	}
	return value, nil
}

func wrapFormError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("%w: %w", ErrNoAnswer, err)
	}
	return fmt.Errorf("prompt: %w", err)
}
