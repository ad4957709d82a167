package task

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/prompt"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/task"
)

// DefaultSettings mirrors a typical configuration: root reachable on 22,
// sshd moved to 10022, interactive prompts off.
func DefaultSettings() task.Settings {
	return task.Settings{
		LoginUser:      "deploy",
		LoginPassword:  "deploy-pass",
		DefaultSSHPort: 22,
		SSHPort:        10022,
		RootPassword:   "root-pass",
	}
}

// NewEnv builds a task environment around h with a scripted prompter.
func NewEnv(h host.Host, settings task.Settings, answers ...any) *task.Env {
	return &task.Env{
		Host:     h,
		State:    state.NewStore(h, ""),
		Prompt:   prompt.NewScripted(answers...),
		Settings: settings,
		Logger:   zerolog.Nop(),
	}
}

func PlanTasks(t *testing.T, overrides map[string]any, spec task.Spec) []task.Task {
	t.Helper()

	tasks, unknown, err := task.PlanTasks(overrides, []task.Spec{spec})
	if err != nil {
		t.Fatalf("PlanTasks failed: %v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("unexpected unknown keys: %v", unknown)
	}
	if len(tasks) == 0 {
		t.Fatalf("expected at least one task, got %d", len(tasks))
	}
	return tasks
}

// PlanTask returns the single task planned for spec.
func PlanTask(t *testing.T, overrides map[string]any, spec task.Spec) task.Task {
	t.Helper()

	tasks := PlanTasks(t, overrides, spec)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	return tasks[0]
}

func Apply(t *testing.T, ctx context.Context, tk task.Task, env *task.Env) bool {
	t.Helper()

	changed, err := tk.Apply(ctx, env)
	if err != nil {
		t.Fatalf("Apply %q failed: %v", tk.Name(), err)
	}
	return changed
}

func Rollback(t *testing.T, ctx context.Context, tk task.Task, env *task.Env) bool {
	t.Helper()

	changed, err := tk.Rollback(ctx, env)
	if err != nil {
		t.Fatalf("Rollback %q failed: %v", tk.Name(), err)
	}
	return changed
}

func RunCommand(t *testing.T, ctx context.Context, h host.Host, command string) string {
	t.Helper()

	output, err := h.Sudo(ctx, command)
	if err != nil {
		t.Fatalf("command %q failed: %v\nOutput: %s", command, err, output)
	}
	return output
}

// CaptureLog points env's logger at a buffer and returns it. Entries are
// JSON, one per line.
func CaptureLog(env *task.Env) *bytes.Buffer {
	var buf bytes.Buffer
	env.Logger = zerolog.New(&buf)
	return &buf
}
