package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/taskutil"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const TaskKey = "packages"

const (
	UnattendedConfigPath = "/etc/apt/apt.conf.d/10periodic"
	apparmorInit         = "/etc/init.d/apparmor"
	autoremoveCmd        = "DEBIAN_FRONTEND=noninteractive apt-get autoremove -qqy"
)

var unattendedConfig = []string{
	`APT::Periodic::Update-Package-Lists "1";`,
	`APT::Periodic::Download-Upgradeable-Packages "1";`,
	`APT::Periodic::AutocleanInterval "7";`,
	`APT::Periodic::Unattended-Upgrade "1";`,
}

type Config struct {
	Enabled bool `yaml:"enabled"`

	// Overwrite reapplies post-install configuration to packages that were
	// already installed.
	Overwrite       bool          `yaml:"overwrite"`
	DisableAppArmor bool          `yaml:"disable_apparmor"`
	Base            []string      `yaml:"base"`
	Extra           []string      `yaml:"extra"`
	Apache          ApacheConfig  `yaml:"apache"`
	Nginx           NginxConfig   `yaml:"nginx"`
	Tooling         ToolingConfig `yaml:"tooling"`
}

type ApacheConfig struct {
	Listen string `yaml:"listen"`
}

type NginxConfig struct {
	WorkerProcesses   string `yaml:"worker_processes"`
	WorkerConnections int    `yaml:"worker_connections"`
	Upstream          string `yaml:"upstream"`
	ClientMaxBodySize string `yaml:"client_max_body_size"`
}

// ToolingConfig names packages installed with a secondary installer such
// as pip after the system packages.
type ToolingConfig struct {
	Installer string   `yaml:"installer"`
	Packages  []string `yaml:"packages"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "packages.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.Tooling.Packages = strutil.CleanList(cfg.Tooling.Packages)
	if len(cfg.Tooling.Packages) > 0 && strings.TrimSpace(cfg.Tooling.Installer) == "" {
		return nil, fmt.Errorf("%s: tooling.installer is required when tooling.packages is set", TaskKey)
	}
	for _, pkg := range cfg.Tooling.Packages {
		if err := taskutil.CheckName(taskutil.KindMarker, pkg); err != nil {
			return nil, fmt.Errorf("%s: tooling: %w", TaskKey, err)
		}
	}
	if cfg.Nginx.ClientMaxBodySize == "" {
		cfg.Nginx.ClientMaxBodySize = "10m"
	}
	return []task.Task{&InstallPackagesTask{
		cfg:      cfg,
		packages: strutil.CleanList(append(append([]string{}, cfg.Base...), cfg.Extra...)),
	}}, nil
}

// InstallPackagesTask installs the baseline packages that are missing,
// configures apache and nginx and turns on unattended upgrades.
type InstallPackagesTask struct {
	cfg      Config
	packages []string
}

func (t *InstallPackagesTask) Name() string {
	return "install packages"
}

func (t *InstallPackagesTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	changed := false

	if t.cfg.DisableAppArmor {
		disabled, err := disableAppArmor(ctx, env)
		if err != nil {
			return false, err
		}
		changed = changed || disabled
	}

	installed, err := ubuntu.InstalledPackages(ctx, env.Host)
	if err != nil {
		return false, err
	}

	ledger := env.State.Ledger()
	for _, pkg := range t.packages {
		_, present := installed[pkg]
		if !present {
			env.Logger.Info().Str("package", pkg).Msg("Installing package")
			if err := ubuntu.AptGetInstall(ctx, env.Host, pkg); err != nil {
				return false, err
			}
			if err := ledger.Append(ctx, pkg); err != nil {
				return false, err
			}
			if err := afterInstall(ctx, env, pkg); err != nil {
				return false, err
			}
			changed = true
		}
		if present && !t.cfg.Overwrite {
			continue
		}
		configured, err := t.configure(ctx, env, pkg)
		if err != nil {
			return false, err
		}
		changed = changed || configured
	}

	created, err := configureUnattendedUpgrades(ctx, env)
	if err != nil {
		return false, err
	}
	changed = changed || created

	tooled, err := t.installTooling(ctx, env)
	if err != nil {
		return false, err
	}
	return changed || tooled, nil
}

// installTooling runs the secondary installer for each tooling package that
// has no install marker yet.
func (t *InstallPackagesTask) installTooling(ctx context.Context, env *task.Env) (bool, error) {
	changed := false
	for _, pkg := range t.cfg.Tooling.Packages {
		marker := state.ToolingInstalledPrefix + pkg
		done, err := env.State.Exists(ctx, marker)
		if err != nil {
			return false, err
		}
		if done {
			continue
		}
		cmd := t.cfg.Tooling.Installer + " " + strutil.ShellEscape(pkg)
		env.Logger.Info().Str("package", pkg).Msg("Installing tooling")
		if output, err := env.Host.Sudo(ctx, cmd); err != nil {
			return false, fmt.Errorf("install %s: %w\n%s", pkg, err, output)
		}
		if err := env.State.Set(ctx, marker, t.cfg.Tooling.Installer); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func disableAppArmor(ctx context.Context, env *task.Env) (bool, error) {
	present, err := env.Host.Exists(ctx, apparmorInit)
	if err != nil || !present {
		return false, err
	}
	env.Logger.Info().Msg("Disabling AppArmor")
	for _, cmd := range []string{"service apparmor stop", "update-rc.d -f apparmor remove"} {
		if output, err := env.Host.Sudo(ctx, cmd); err != nil {
			return false, fmt.Errorf("disable apparmor: %w\n%s", err, output)
		}
	}
	return true, nil
}

func configureUnattendedUpgrades(ctx context.Context, env *task.Env) (bool, error) {
	exists, err := env.Host.Exists(ctx, UnattendedConfigPath)
	if err != nil || exists {
		return false, err
	}
	env.Logger.Info().Str("path", UnattendedConfigPath).Msg("Configuring unattended upgrades")
	content := strings.Join(unattendedConfig, "\n") + "\n"
	if err := env.Host.WriteFile(ctx, UnattendedConfigPath, content, 0o644); err != nil {
		return false, err
	}
	if err := env.State.Set(ctx, state.UnattendedConfigCreated, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Rollback purges the desired packages that this tool installed, keeps the
// rest of the ledger and removes the unattended upgrade config it created.
func (t *InstallPackagesTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	ledger := env.State.Ledger()
	recorded, err := ledger.Read(ctx)
	if err != nil {
		return false, err
	}

	desired := make(map[string]bool, len(t.packages))
	for _, pkg := range t.packages {
		desired[pkg] = true
	}

	changed := false
	var remaining []string
	for _, pkg := range recorded {
		if !desired[pkg] {
			remaining = append(remaining, pkg)
			continue
		}
		env.Logger.Info().Str("package", pkg).Msg("Purging package")
		if err := ubuntu.AptGetPurge(ctx, env.Host, pkg); err != nil {
			return false, err
		}
		changed = true
	}
	if changed {
		if err := ledger.Write(ctx, remaining); err != nil {
			return false, err
		}
	}

	created, err := env.State.Exists(ctx, state.UnattendedConfigCreated)
	if err != nil {
		return false, err
	}
	if created {
		if err := env.Host.Remove(ctx, UnattendedConfigPath); err != nil {
			return false, err
		}
		if err := env.State.Delete(ctx, state.UnattendedConfigCreated); err != nil {
			return false, err
		}
		changed = true
	}

	if output, err := env.Host.SudoPTY(ctx, autoremoveCmd); err != nil {
		return false, fmt.Errorf("apt-get autoremove: %w\n%s", err, output)
	}
	return changed, nil
}
