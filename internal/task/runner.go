package task

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Runner is responsible for executing tasks against a host.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner creates a new Runner with the given logger.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{
		logger: logger,
	}
}

// Apply runs tasks in order and stops at the first error. Earlier tasks are
// not undone.
func (r *Runner) Apply(ctx context.Context, env *Env, tasks ...Task) error {
	for _, t := range tasks {
		name := t.Name()
		log := r.logger.With().Str("task", name).Str("server", env.Host.ID()).Logger()
		log.Info().Msg("Processing task")

		changed, err := t.Apply(ctx, env)
		if err != nil {
			return fmt.Errorf("failed to apply task %q: %w", name, err)
		}
		if !changed {
			log.Info().Msg("Task skipped")
			continue
		}
		log.Info().Msg("Task applied")
	}
	return nil
}

// Rollback undoes tasks in reverse order and stops at the first error.
func (r *Runner) Rollback(ctx context.Context, env *Env, tasks ...Task) error {
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		name := t.Name()
		log := r.logger.With().Str("task", name).Str("server", env.Host.ID()).Logger()
		log.Info().Msg("Rolling back task")

		changed, err := t.Rollback(ctx, env)
		if err != nil {
			return fmt.Errorf("failed to roll back task %q: %w", name, err)
		}
		if !changed {
			log.Info().Msg("Nothing to roll back")
			continue
		}
		log.Info().Msg("Task rolled back")
	}
	return nil
}
