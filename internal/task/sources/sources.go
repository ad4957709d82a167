package sources

import (
	"context"
	"fmt"

	"github.com/tpodg/hostprep/internal/task"
)

const TaskKey = "sources"

type Config struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "sources.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Path == "" || cfg.Pattern == "" {
		return nil, fmt.Errorf("%s: path and pattern are required", TaskKey)
	}
	return []task.Task{&UncommentSourcesTask{path: cfg.Path, pattern: cfg.Pattern}}, nil
}

// UncommentSourcesTask enables the commented universe repositories.
type UncommentSourcesTask struct {
	path    string
	pattern string
}

func (t *UncommentSourcesTask) Name() string {
	return "uncomment universe sources"
}

func (t *UncommentSourcesTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	commented, err := env.Host.Contains(ctx, t.path, t.pattern)
	if err != nil {
		return false, err
	}
	if !commented {
		return false, nil
	}

	env.Logger.Info().Str("path", t.path).Msg("Uncommenting universe sources")
	if err := env.State.Backup(ctx, t.path); err != nil {
		return false, err
	}
	if err := env.Host.Uncomment(ctx, t.path, t.pattern); err != nil {
		return false, err
	}
	return true, nil
}

func (t *UncommentSourcesTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	return env.State.Restore(ctx, t.path, false)
}
