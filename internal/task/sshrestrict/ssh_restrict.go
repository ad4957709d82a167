package sshrestrict

import (
	"context"
	"fmt"

	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/sshd"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/sshkey"
)

const TaskKey = "ssh_restrict"

type Config struct {
	Enabled       bool     `yaml:"enabled"`
	UseDNS        bool     `yaml:"use_dns"`
	X11Forwarding bool     `yaml:"x11_forwarding"`
	MaxAuthTries  int      `yaml:"max_auth_tries"`
	AllowUsers    []string `yaml:"allow_users"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "ssh_restrict.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.MaxAuthTries <= 0 {
		return nil, fmt.Errorf("%s: max_auth_tries must be positive", TaskKey)
	}
	return []task.Task{&RestrictSSHTask{cfg: cfg}}, nil
}

// RestrictSSHTask replaces sshd_config with a hardened one and, once the
// operator confirms key login works, turns off password authentication.
type RestrictSSHTask struct {
	cfg Config
}

func (t *RestrictSSHTask) Name() string {
	return "restrict ssh"
}

func (t *RestrictSSHTask) render(settings task.Settings) (string, error) {
	allow := strutil.CleanList(t.cfg.AllowUsers)
	if len(allow) > 0 && settings.LoginUser != "" {
		allow = strutil.CleanList(append(allow, settings.LoginUser))
	}
	return renderSSHDConfig(sshdConfigData{
		Port:          settings.SSHPort,
		UseDNS:        t.cfg.UseDNS,
		X11Forwarding: t.cfg.X11Forwarding,
		MaxAuthTries:  t.cfg.MaxAuthTries,
		AllowUsers:    allow,
	})
}

func (t *RestrictSSHTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	restricted, err := env.State.Exists(ctx, state.SSHRestricted)
	if err != nil {
		return false, err
	}
	if restricted {
		env.Logger.Warn().Msg("sshd_config has already been modified. Skipping.")
		return false, nil
	}

	keys, err := sshkey.AuthorizedKeysPath(ctx, env, env.Host.User())
	if err != nil {
		return false, err
	}
	hasKeys, err := env.Host.Exists(ctx, keys)
	if err != nil {
		return false, err
	}
	if !hasKeys {
		env.Logger.Warn().Msgf("%s not found. Upload an ssh key first.", keys)
		return false, nil
	}

	config, err := t.render(env.Settings)
	if err != nil {
		return false, err
	}

	env.Logger.Info().Str("path", sshd.DefaultConfigPath).Msg("Restricting SSH")
	if err := env.State.Backup(ctx, sshd.DefaultConfigPath); err != nil {
		return false, err
	}
	if err := env.Host.WriteFile(ctx, sshd.DefaultConfigPath, config, 0o644); err != nil {
		return false, err
	}
	if err := sshd.Restart(ctx, env.Host); err != nil {
		return false, err
	}

	proceed := true
	if env.Settings.Interactive {
		commented, err := env.Host.Contains(ctx, sshd.DefaultConfigPath, sshd.CommentedPasswordAuthPattern)
		if err != nil {
			return false, err
		}
		if commented {
			message := fmt.Sprintf("Password login will be disabled and only your ssh key accepted.\n"+
				"Confirm that `ssh %s@%s -p %d` works from another terminal without a password.\n"+
				"Decline to restore the previous sshd_config.",
				env.Host.User(), server.Host(env.Host.Address()), env.Settings.SSHPort)
			if proceed, err = env.Prompt.Confirm(ctx, message, false); err != nil {
				return false, err
			}
		}
	}

	if !proceed {
		env.Logger.Warn().Msg("Restoring sshd_config and keeping password login")
		if _, err := env.State.Restore(ctx, sshd.DefaultConfigPath, true); err != nil {
			return false, err
		}
		if err := sshd.SetPort(ctx, env.Host, env.Settings.DefaultSSHPort, env.Settings.SSHPort); err != nil {
			return false, err
		}
		if err := sshd.Restart(ctx, env.Host); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := env.Host.Uncomment(ctx, sshd.DefaultConfigPath, sshd.CommentedPasswordAuthPattern); err != nil {
		return false, err
	}
	_, config, err = sshd.ReadConfig(ctx, env.Host)
	if err != nil {
		return false, err
	}
	disabled, err := sshd.PasswordAuthDisabled(config)
	if err != nil {
		return false, err
	}
	if !disabled {
		env.Logger.Warn().Msgf("Password authentication is still enabled in %s", sshd.DefaultConfigPath)
	}
	if err := sshd.Restart(ctx, env.Host); err != nil {
		return false, err
	}
	if err := env.State.Set(ctx, state.SSHRestricted, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (t *RestrictSSHTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	restricted, err := env.State.Exists(ctx, state.SSHRestricted)
	if err != nil {
		return false, err
	}
	restored, err := env.State.Restore(ctx, sshd.DefaultConfigPath, false)
	if err != nil {
		return false, err
	}
	if !restored && !restricted {
		return false, nil
	}

	portChanged, err := env.State.Exists(ctx, state.SSHPortChanged)
	if err != nil {
		return false, err
	}
	if portChanged {
		if err := sshd.SetPort(ctx, env.Host, env.Settings.DefaultSSHPort, env.Settings.SSHPort); err != nil {
			return false, err
		}
	}
	if err := sshd.Restart(ctx, env.Host); err != nil {
		return false, err
	}
	if err := env.State.Delete(ctx, state.SSHRestricted); err != nil {
		return false, err
	}
	return true, nil
}
