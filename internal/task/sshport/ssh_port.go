package sshport

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/sshd"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const TaskKey = "ssh_port"

type Config struct {
	Enabled        bool   `yaml:"enabled"`
	MinimumRelease string `yaml:"minimum_release"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "ssh_port.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.MinimumRelease == "" {
		return nil, fmt.Errorf("%s: minimum_release is required", TaskKey)
	}
	return []task.Task{&ChangeSSHPortTask{minimumRelease: cfg.MinimumRelease}}, nil
}

// ChangeSSHPortTask moves sshd from the default port to the configured one.
// It runs first, connecting as root on the default port; when that port no
// longer answers the host is taken to be provisioned already.
type ChangeSSHPortTask struct {
	minimumRelease string
}

func (t *ChangeSSHPortTask) Name() string {
	return "change ssh port"
}

func (t *ChangeSSHPortTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	from, to := env.Settings.DefaultSSHPort, env.Settings.SSHPort
	if from == to {
		env.Logger.Debug().Int("port", to).Msg("SSH port already matches the default")
		return false, nil
	}

	root, err := env.AsRoot(from)
	if err != nil {
		return false, err
	}

	// Reading the release doubles as the reachability check.
	release, err := ubuntu.RequireRelease(ctx, root.Host, t.minimumRelease)
	if err != nil {
		if errors.Is(err, server.ErrUnreachable) {
			env.Logger.Warn().Msgf("Default port %d not responding. Setup may already have run or the host is down. Skipping.", from)
			return false, nil
		}
		return false, err
	}
	env.Logger.Debug().Str("release", release.String()).Msg("Detected release")

	_, config, err := sshd.ReadConfig(ctx, root.Host)
	if err != nil {
		return false, err
	}
	current, err := sshd.ConfiguredPort(config)
	if err != nil {
		return false, err
	}
	if current == to {
		env.Logger.Warn().Msgf("sshd_config already uses port %d. Skipping.", to)
		return false, nil
	}

	env.Logger.Info().Int("port", to).Msg("Changing SSH port")
	if err := sshd.SetPort(ctx, root.Host, from, to); err != nil {
		return false, err
	}
	if err := sshd.Restart(ctx, root.Host); err != nil {
		return false, err
	}
	if err := root.State.Set(ctx, state.SSHPortChanged, strconv.Itoa(from)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *ChangeSSHPortTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	to := env.Settings.SSHPort
	root, err := env.AsRoot(to)
	if err != nil {
		return false, err
	}

	previous, ok, err := root.State.Get(ctx, state.SSHPortChanged)
	if err != nil || !ok {
		return false, err
	}
	original, err := strconv.Atoi(previous)
	if err != nil {
		return false, fmt.Errorf("invalid %s marker %q: %w", state.SSHPortChanged, previous, err)
	}

	if err := sshd.SetPort(ctx, root.Host, to, original); err != nil {
		return false, err
	}
	if err := root.State.Delete(ctx, state.SSHPortChanged); err != nil {
		return false, err
	}
	if err := sshd.Restart(ctx, root.Host); err != nil {
		return false, err
	}
	return true, nil
}
