package packages

import (
	"context"
	"fmt"

	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/taskutil"
)

const (
	apachePortsPath   = "/etc/apache2/ports.conf"
	apacheConfigPath  = "/etc/apache2/apache2.conf"
	nginxConfigPath   = "/etc/nginx/nginx.conf"
	nginxProxyPath    = "/etc/nginx/proxy.conf"
	nginxDefaultSite  = "/etc/nginx/sites-enabled/default"
	apacheDefaultSite = "000-default"
)

// afterInstall runs once, right after pkg was installed by this tool.
func afterInstall(ctx context.Context, env *task.Env, pkg string) error {
	switch pkg {
	case "apache2":
		if output, err := env.Host.Sudo(ctx, "a2dissite "+apacheDefaultSite); err != nil {
			return fmt.Errorf("disable apache default site: %w\n%s", err, output)
		}
	case "nginx":
		return env.Host.Remove(ctx, nginxDefaultSite)
	}
	return nil
}

// configure uploads the configuration of the packages this tool manages and
// stops the service so it is started once the application is deployed.
func (t *InstallPackagesTask) configure(ctx context.Context, env *task.Env, pkg string) (bool, error) {
	switch pkg {
	case "apache2":
		return true, t.configureApache(ctx, env)
	case "nginx":
		return true, t.configureNginx(ctx, env)
	}
	return false, nil
}

func (t *InstallPackagesTask) configureApache(ctx context.Context, env *task.Env) error {
	env.Logger.Info().Str("path", apachePortsPath).Msg("Uploading apache configuration")
	if err := upload(ctx, env, "ports.conf.tmpl", apachePortsPath, t.cfg.Apache); err != nil {
		return err
	}
	if err := env.Host.Sed(ctx, apacheConfigPath, "^KeepAlive On", "KeepAlive Off"); err != nil {
		return err
	}
	stopService(ctx, env, "apache2ctl stop")
	return nil
}

func (t *InstallPackagesTask) configureNginx(ctx context.Context, env *task.Env) error {
	env.Logger.Info().Str("path", nginxConfigPath).Msg("Uploading nginx configuration")
	if err := upload(ctx, env, "nginx.conf.tmpl", nginxConfigPath, t.cfg.Nginx); err != nil {
		return err
	}
	if err := upload(ctx, env, "proxy.conf.tmpl", nginxProxyPath, t.cfg.Nginx); err != nil {
		return err
	}
	stopService(ctx, env, "service nginx stop")
	return nil
}

func upload(ctx context.Context, env *task.Env, name, dst string, data any) error {
	content, err := taskutil.Render(configTemplates, name, data)
	if err != nil {
		return err
	}
	return env.Host.WriteFile(ctx, dst, content, 0o644)
}

// stopService ignores failures; a service that is not running is fine.
func stopService(ctx context.Context, env *task.Env, cmd string) {
	if output, err := env.Host.Sudo(ctx, cmd); err != nil {
		env.Logger.Debug().Err(err).Str("output", output).Msg("Stopping service failed")
	}
}
