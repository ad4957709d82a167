package cli

import (
	"sort"

	"github.com/tpodg/hostprep/internal/config"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/catalog"
)

// planServer builds the tasks of the selected specs for s. Overrides for
// catalogue tasks that were not selected are ignored; keys outside the
// catalogue are returned as unknown.
func planServer(s config.ServerConfig, specs []task.Spec) ([]task.Task, []string, error) {
	known := make(map[string]bool)
	for _, spec := range catalog.Builtins() {
		known[spec.Key] = true
	}
	selected := make(map[string]bool, len(specs))
	for _, spec := range specs {
		selected[spec.Key] = true
	}

	overrides := make(map[string]any, len(s.Tasks))
	var unknown []string
	for key, value := range s.Tasks {
		switch {
		case selected[key]:
			overrides[key] = value
		case !known[key]:
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	tasks, _, err := task.PlanTasks(overrides, specs)
	if err != nil {
		return nil, nil, err
	}
	return tasks, unknown, nil
}
