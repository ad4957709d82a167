package upgrade

import (
	"context"
	"fmt"

	"github.com/tpodg/hostprep/internal/task"
)

const TaskKey = "upgrade"

const (
	updateCmd  = "DEBIAN_FRONTEND=noninteractive apt-get -qqy update"
	upgradeCmd = "DEBIAN_FRONTEND=noninteractive apt-get -qqy upgrade"
)

type Config struct {
	Enabled bool `yaml:"enabled"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "upgrade.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return []task.Task{&UpgradeTask{}}, nil
}

// UpgradeTask refreshes the package lists and upgrades installed packages.
type UpgradeTask struct{}

func (t *UpgradeTask) Name() string {
	return "upgrade packages"
}

func (t *UpgradeTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	env.Logger.Info().Msg("Updating package lists")
	if output, err := env.Host.SudoPTY(ctx, updateCmd); err != nil {
		return false, fmt.Errorf("apt-get update: %w\n%s", err, output)
	}
	env.Logger.Info().Msg("Upgrading packages, this may take a while")
	if output, err := env.Host.SudoPTY(ctx, upgradeCmd); err != nil {
		return false, fmt.Errorf("apt-get upgrade: %w\n%s", err, output)
	}
	return true, nil
}

// Rollback does nothing; upgrades are not reverted.
func (t *UpgradeTask) Rollback(context.Context, *task.Env) (bool, error) {
	return false, nil
}
