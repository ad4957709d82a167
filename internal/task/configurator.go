package task

import "context"

// TaskConfigurator binds a planned task list to the runner that drives it.
type TaskConfigurator struct {
	tasks  []Task
	runner *Runner
}

func NewTaskConfigurator(runner *Runner, tasks ...Task) *TaskConfigurator {
	return &TaskConfigurator{tasks: tasks, runner: runner}
}

// Configure applies the tasks in catalogue order.
func (tc *TaskConfigurator) Configure(ctx context.Context, env *Env) error {
	return tc.runner.Apply(ctx, env, tc.tasks...)
}

// Revert rolls the tasks back, last task first.
func (tc *TaskConfigurator) Revert(ctx context.Context, env *Env) error {
	return tc.runner.Rollback(ctx, env, tc.tasks...)
}

// Len reports how many tasks were planned.
func (tc *TaskConfigurator) Len() int { return len(tc.tasks) }
