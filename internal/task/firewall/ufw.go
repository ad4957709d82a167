package firewall

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const TaskKey = "ufw"

const (
	ConfigPath = "/etc/ufw/ufw.conf"
	pkg        = "ufw"
)

type Config struct {
	Enabled bool     `yaml:"enabled"`
	Rules   []string `yaml:"rules"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "ufw.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rules := strutil.CleanList(cfg.Rules)
	for _, rule := range rules {
		if strings.ContainsAny(rule, "\n;&|`$") {
			return nil, fmt.Errorf("%s: invalid rule %q", TaskKey, rule)
		}
	}
	return []task.Task{&SetupUFWTask{rules: rules}}, nil
}

// SetupUFWTask installs and enables ufw with the ssh port and the
// configured rules allowed.
type SetupUFWTask struct {
	rules []string
}

func (t *SetupUFWTask) Name() string {
	return "setup ufw"
}

func ufw(ctx context.Context, h host.Host, rule string) error {
	args := strings.Fields(rule)
	for i, arg := range args {
		args[i] = strutil.ShellEscape(arg)
	}
	cmd := "ufw " + strings.Join(args, " ")
	if output, err := h.Sudo(ctx, cmd); err != nil {
		return fmt.Errorf("ufw %s: %w\n%s", rule, err, output)
	}
	return nil
}

func (t *SetupUFWTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	installed, err := ubuntu.PackageInstalled(ctx, env.Host, pkg)
	if err != nil {
		return false, err
	}
	if !installed {
		env.Logger.Info().Msg("Installing ufw")
		if err := ubuntu.AptGetInstall(ctx, env.Host, pkg); err != nil {
			return false, err
		}
		if err := env.State.Set(ctx, state.UFWInstalled, ""); err != nil {
			return false, err
		}
	}

	rules := append([]string{fmt.Sprintf("allow %d/tcp", host.Port(env.Host))}, t.rules...)
	for _, rule := range rules {
		env.Logger.Debug().Str("rule", rule).Msg("Applying ufw rule")
		if err := ufw(ctx, env.Host, rule); err != nil {
			return false, err
		}
	}

	backedUp, err := env.State.HasBackup(ctx, ConfigPath)
	if err != nil {
		return false, err
	}
	if !backedUp {
		if err := env.State.Backup(ctx, ConfigPath); err != nil {
			return false, err
		}
	}
	if err := env.Host.Sed(ctx, ConfigPath, "^ENABLED=no", "ENABLED=yes"); err != nil {
		return false, err
	}
	if err := ufw(ctx, env.Host, "reload"); err != nil {
		return false, err
	}
	return true, nil
}

// Rollback removes ufw only when this tool installed it. A firewall that
// was present before stays installed and enabled. Either way the ufw.conf
// backup taken by Apply is dropped.
func (t *SetupUFWTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	ours, err := env.State.Exists(ctx, state.UFWInstalled)
	if err != nil {
		return false, err
	}
	if ours {
		if err := ufw(ctx, env.Host, "disable"); err != nil {
			return false, err
		}
		if err := ubuntu.AptGetPurge(ctx, env.Host, pkg); err != nil {
			return false, err
		}
	}
	if err := discardConfigBackup(ctx, env); err != nil {
		return false, err
	}
	if !ours {
		return false, nil
	}
	if err := env.State.Delete(ctx, state.UFWInstalled); err != nil {
		return false, err
	}
	return true, nil
}

func discardConfigBackup(ctx context.Context, env *task.Env) error {
	backedUp, err := env.State.HasBackup(ctx, ConfigPath)
	if err != nil || !backedUp {
		return err
	}
	return env.State.DiscardBackup(ctx, ConfigPath)
}
