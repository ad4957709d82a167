package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Task is one provisioning operation. Apply and Rollback report whether they
// changed the host; false means the step was skipped.
type Task interface {
	Name() string
	// Apply brings the host into the state the task provides.
	Apply(ctx context.Context, env *Env) (bool, error)
	// Rollback undoes what Apply recorded on the host.
	Rollback(ctx context.Context, env *Env) (bool, error)
}

// Handler builds tasks from the merged options of one catalogue key.
type Handler func(options any) ([]Task, error)

type Builder struct {
	Key     string
	Handler Handler
}

// CreateTasks runs each builder against its key in options, in builder order.
// Keys in options that no builder handles are returned sorted.
func CreateTasks(options map[string]any, builders ...Builder) ([]Task, []string, error) {
	handled := make(map[string]bool, len(builders))
	var tasks []Task
	for _, b := range builders {
		if handled[b.Key] {
			return nil, nil, fmt.Errorf("duplicate task builder key: %s", b.Key)
		}
		handled[b.Key] = true

		raw, ok := options[b.Key]
		if !ok {
			continue
		}
		built, err := b.Handler(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("build %s tasks: %w", b.Key, err)
		}
		tasks = append(tasks, built...)
	}

	var unknown []string
	for _, key := range slices.Sorted(maps.Keys(options)) {
		if !handled[key] {
			unknown = append(unknown, key)
		}
	}
	return tasks, unknown, nil
}
