package rootaccess

import (
	"context"
	"errors"
	"fmt"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/taskutil"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const (
	TaskKey = "root"

	sudoersPath     = "/etc/sudoers"
	sudoersTempPath = "/tmp/sudoers.tmp"
	groupPath       = "/etc/group"

	maxPasswordAttempts = 3
)

type Config struct {
	Enabled   bool   `yaml:"enabled"`
	SudoGroup string `yaml:"sudo_group"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "root.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := taskutil.CheckName(taskutil.KindGroup, cfg.SudoGroup); err != nil {
		return nil, err
	}
	return []task.Task{&DisableRootTask{group: cfg.SudoGroup}}, nil
}

// DisableRootTask hands administration to the personal login account and
// locks the root password.
type DisableRootTask struct {
	group string
}

func (t *DisableRootTask) Name() string {
	return "disable root"
}

func (t *DisableRootTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	user := env.Settings.LoginUser
	if user == "" || user == "root" {
		env.Logger.Warn().Msgf("%s needs a login user other than root. Skipping.", t.Name())
		return false, nil
	}

	root, err := env.AsRoot(host.Port(env.Host))
	if err != nil {
		return false, err
	}

	hasGroup, err := root.Host.Contains(ctx, groupPath, "^"+t.group+":")
	if err != nil {
		if errors.Is(err, server.ErrUnreachable) {
			env.Logger.Warn().Msg("Root login refused. Root may already be disabled. Skipping.")
			return false, nil
		}
		return false, err
	}
	if !hasGroup {
		if _, err := root.Host.Sudo(ctx, "groupadd "+strutil.ShellEscape(t.group)); err != nil {
			return false, fmt.Errorf("add group %s: %w", t.group, err)
		}
		if err := root.State.Set(ctx, state.SudoAdded, ""); err != nil {
			return false, err
		}
	}

	password := env.Settings.LoginPassword
	home, err := ubuntu.HomeDir(ctx, root.Host, user)
	if err != nil {
		return false, err
	}
	exists, err := root.Host.Exists(ctx, home)
	if err != nil {
		return false, err
	}
	if !exists {
		env.Logger.Info().Str("user", user).Msg("Creating account")
		if password == "" {
			if password, err = enterPassword(ctx, env, user); err != nil {
				return false, err
			}
		}
		if err := ubuntu.AddUser(ctx, root.Host, user, password, t.group); err != nil {
			return false, err
		}
		if err := t.grantGroup(ctx, root); err != nil {
			return false, err
		}
	} else {
		if _, err := root.Host.Sudo(ctx, "adduser "+strutil.ShellEscape(user)+" "+strutil.ShellEscape(t.group)); err != nil {
			return false, fmt.Errorf("add %s to %s: %w", user, t.group, err)
		}
	}

	login, err := env.As(server.Override{Password: password})
	if err != nil {
		return false, err
	}
	env.Logger.Info().Msg("Locking root")
	if _, err := login.Host.Sudo(ctx, "usermod -L root"); err != nil {
		return false, fmt.Errorf("lock root: %w", err)
	}
	return true, nil
}

// grantGroup adds the group rule to sudoers through a copy checked by visudo.
func (t *DisableRootTask) grantGroup(ctx context.Context, root *task.Env) error {
	hasBackup, err := root.State.HasBackup(ctx, sudoersPath)
	if err != nil {
		return err
	}
	if !hasBackup {
		if err := root.State.Backup(ctx, sudoersPath); err != nil {
			return err
		}
	}
	if err := root.Host.CopyFile(ctx, sudoersPath, sudoersTempPath); err != nil {
		return err
	}
	lines := []string{
		"# Members of the " + t.group + " group may gain root privileges",
		"%" + t.group + " ALL=(ALL) ALL",
	}
	if err := root.Host.Append(ctx, sudoersTempPath, lines...); err != nil {
		return err
	}
	if _, err := root.Host.Sudo(ctx, "visudo -c -f "+sudoersTempPath); err != nil {
		return fmt.Errorf("validate sudoers: %w", err)
	}
	if err := root.Host.CopyFile(ctx, sudoersTempPath, sudoersPath); err != nil {
		return err
	}
	return root.Host.Remove(ctx, sudoersTempPath)
}

func (t *DisableRootTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	user := env.Settings.LoginUser
	if user == "" || user == "root" {
		return false, nil
	}

	rootPassword := env.Settings.RootPassword
	if rootPassword == "" {
		var err error
		if rootPassword, err = enterPassword(ctx, env, "root"); err != nil {
			return false, err
		}
		env.Settings.RootPassword = rootPassword
	}
	if err := ubuntu.SetPassword(ctx, env.Host, "root", rootPassword); err != nil {
		return false, err
	}

	env.Logger.Info().Str("server", env.Host.ID()).Msg("Reconnecting as root")
	root, err := env.AsRoot(host.Port(env.Host))
	if err != nil {
		return false, err
	}

	if env.Settings.Interactive {
		message := fmt.Sprintf("CAUTION: the user %s and its home directory will now be deleted.\nPlease ensure you can login as root before continuing.\nDo you wish to continue?", user)
		proceed, err := env.Prompt.Confirm(ctx, message, false)
		if err != nil {
			return false, err
		}
		if !proceed {
			env.Logger.Warn().Str("user", user).Msg("Root password restored, keeping the login user")
			return true, nil
		}
	}

	if _, err := root.Host.Sudo(ctx, "deluser --remove-home "+strutil.ShellEscape(user)); err != nil {
		return false, fmt.Errorf("delete user %s: %w", user, err)
	}
	if _, err := root.State.Restore(ctx, sudoersPath, false); err != nil {
		return false, err
	}

	added, err := root.State.Exists(ctx, state.SudoAdded)
	if err != nil {
		return false, err
	}
	if added {
		if _, err := root.Host.Sudo(ctx, "groupdel "+strutil.ShellEscape(t.group)); err != nil {
			return false, fmt.Errorf("delete group %s: %w", t.group, err)
		}
		if err := root.State.Delete(ctx, state.SudoAdded); err != nil {
			return false, err
		}
	}
	return true, nil
}

// enterPassword asks for a password twice until both entries match.
func enterPassword(ctx context.Context, env *task.Env, user string) (string, error) {
	if !env.Settings.Interactive {
		return "", fmt.Errorf("no password configured for %s and prompting is disabled", user)
	}
	for range maxPasswordAttempts {
		first, err := env.Prompt.Password(ctx, fmt.Sprintf("Enter the password for %s:", user))
		if err != nil {
			return "", err
		}
		second, err := env.Prompt.Password(ctx, "Re-enter the password:")
		if err != nil {
			return "", err
		}
		if first == second && first != "" {
			return first, nil
		}
		env.Logger.Warn().Msg("The passwords did not match")
	}
	return "", fmt.Errorf("no matching password for %s after %d attempts", user, maxPasswordAttempts)
}
