package packages_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/packages"
	"github.com/tpodg/hostprep/internal/testutils/hosttest"
	tasktests "github.com/tpodg/hostprep/internal/testutils/task"
)

const (
	ledgerPath = state.DefaultDir + "/packages_installed.txt"
	markerPath = state.DefaultDir + "/" + state.UnattendedConfigCreated
)

func newHost() *hosttest.Host {
	h := hosttest.New("203.0.113.10:10022", "deploy")
	w := h.World()
	w.SetFile("/etc/apache2/apache2.conf", "Timeout 300\nKeepAlive On\nMaxKeepAliveRequests 100\n")
	w.SetFile("/etc/nginx/sites-enabled/default", "server {}\n")
	return h
}

func overrides(cfg map[string]any) map[string]any {
	cfg["tooling"] = map[string]any{"packages": []any{}}
	return map[string]any{packages.TaskKey: cfg}
}

func TestInstallPackagesOnlyMissing(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.Install("ufw")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, overrides(map[string]any{"base": []any{"ufw", "apache2"}}), packages.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))

	installs := w.Ran("apt-get install")
	require.Len(t, installs, 1)
	assert.Equal(t, "DEBIAN_FRONTEND=noninteractive apt-get install -qqy apache2", installs[0].Cmd)
	assert.True(t, installs[0].PTY)

	ledger, ok := w.File(ledgerPath)
	require.True(t, ok)
	assert.Equal(t, "apache2\n", ledger)

	assert.Len(t, w.Ran("a2dissite 000-default"), 1)
	assert.Len(t, w.EditsOf("/etc/apache2/ports.conf"), 1)
	assert.Len(t, w.Ran("apache2ctl stop"), 1)
	ports, _ := w.File("/etc/apache2/ports.conf")
	assert.Contains(t, ports, "Listen 127.0.0.1:8080\n")
	apacheConf, _ := w.File("/etc/apache2/apache2.conf")
	assert.Equal(t, "Timeout 300\nKeepAlive Off\nMaxKeepAliveRequests 100\n", apacheConf)

	periodic, ok := w.File(packages.UnattendedConfigPath)
	require.True(t, ok)
	assert.Equal(t, `APT::Periodic::Update-Package-Lists "1";
APT::Periodic::Download-Upgradeable-Packages "1";
APT::Periodic::AutocleanInterval "7";
APT::Periodic::Unattended-Upgrade "1";
`, periodic)
	_, ok = w.File(markerPath)
	assert.True(t, ok)

	assert.False(t, tasktests.Apply(t, ctx, tk, env), "everything is in place")
	assert.Len(t, w.Ran("apt-get install"), 1)
	assert.Len(t, w.EditsOf("/etc/apache2/ports.conf"), 1)
}

func TestInstallPackagesRollback(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.Install("ufw")
	w.SetFile(ledgerPath, "redis-server\n")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, overrides(map[string]any{"base": []any{"ufw", "apache2", "nginx"}}), packages.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))
	ledger, _ := w.File(ledgerPath)
	assert.Equal(t, "redis-server\napache2\nnginx\n", ledger)
	_, ok := w.File("/etc/nginx/sites-enabled/default")
	assert.False(t, ok)
	nginxConf, ok := w.File("/etc/nginx/nginx.conf")
	require.True(t, ok)
	assert.Contains(t, nginxConf, "server 127.0.0.1:8080;")
	assert.Contains(t, nginxConf, "worker_connections 768;")
	proxy, ok := w.File("/etc/nginx/proxy.conf")
	require.True(t, ok)
	assert.Contains(t, proxy, "proxy_set_header Host $host;")
	assert.Contains(t, proxy, "client_max_body_size 10m;")

	require.True(t, tasktests.Rollback(t, ctx, tk, env))
	assert.False(t, w.Packages["apache2"])
	assert.False(t, w.Packages["nginx"])
	assert.True(t, w.Packages["ufw"], "packages installed by someone else stay")
	ledger, _ = w.File(ledgerPath)
	assert.Equal(t, "redis-server\n", ledger)
	_, ok = w.File(packages.UnattendedConfigPath)
	assert.False(t, ok)
	_, ok = w.File(markerPath)
	assert.False(t, ok)
	assert.Len(t, w.Ran("apt-get autoremove -qqy"), 1)
}

func TestInstallPackagesOverwrite(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.Install("nginx")
	w.SetFile(packages.UnattendedConfigPath, "APT::Periodic::Unattended-Upgrade \"0\";\n")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, overrides(map[string]any{
		"base":      []any{"nginx"},
		"overwrite": true,
		"nginx":     map[string]any{"upstream": "unix:/run/app.sock"},
	}), packages.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))
	assert.Empty(t, w.Ran("apt-get install"))
	_, ok := w.File("/etc/nginx/sites-enabled/default")
	assert.True(t, ok, "default site is only removed after a fresh install")
	nginxConf, _ := w.File("/etc/nginx/nginx.conf")
	assert.Contains(t, nginxConf, "server unix:/run/app.sock;")
	assert.Len(t, w.Ran("service nginx stop"), 1)

	periodic, _ := w.File(packages.UnattendedConfigPath)
	assert.Equal(t, "APT::Periodic::Unattended-Upgrade \"0\";\n", periodic)
	_, ok = w.File(markerPath)
	assert.False(t, ok)
	_, ok = w.File(ledgerPath)
	assert.False(t, ok)
}

func TestInstallPackagesAppArmorAndTooling(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.SetFile("/etc/init.d/apparmor", "#!/bin/sh\n")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, map[string]any{
		packages.TaskKey: map[string]any{
			"base":    []any{},
			"tooling": map[string]any{"installer": "pipx install", "packages": []any{"poetry", "black"}},
		},
	}, packages.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))
	assert.Len(t, w.Ran("service apparmor stop"), 1)
	assert.Len(t, w.Ran("update-rc.d -f apparmor remove"), 1)
	assert.Len(t, w.Ran("pipx install 'poetry'"), 1)
	assert.Len(t, w.Ran("pipx install 'black'"), 1)
	marker, ok := w.File(state.DefaultDir + "/" + state.ToolingInstalledPrefix + "poetry")
	require.True(t, ok)
	assert.Equal(t, "pipx install", marker)

	delete(w.Files, "/etc/init.d/apparmor")
	assert.False(t, tasktests.Apply(t, ctx, tk, env), "tooling is installed once")
	assert.Len(t, w.Ran("pipx install"), 2)
}

func TestInstallPackagesDefaultsUseApt(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, nil, packages.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))
	assert.True(t, w.Packages["python3-virtualenv"])
	assert.Empty(t, w.Ran("pip3 install"))
}

func TestInstallPackagesToolingFailure(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.OnCommand(func(c hosttest.Command) (string, bool, error) {
		if strings.HasPrefix(c.Cmd, "pip3 install") {
			return "error: externally-managed-environment\n", true, errors.New("exit status 1")
		}
		return "", false, nil
	})
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, map[string]any{
		packages.TaskKey: map[string]any{
			"base":    []any{},
			"tooling": map[string]any{"installer": "pip3 install", "packages": []any{"virtualenv"}},
		},
	}, packages.Spec())

	_, err := tk.Apply(ctx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "externally-managed-environment")
	_, ok := w.File(state.DefaultDir + "/" + state.ToolingInstalledPrefix + "virtualenv")
	assert.False(t, ok)
}

func TestInstallPackagesRequiresInstaller(t *testing.T) {
	_, _, err := task.PlanTasks(map[string]any{
		packages.TaskKey: map[string]any{"tooling": map[string]any{"installer": "", "packages": []any{"poetry"}}},
	}, []task.Spec{packages.Spec()})
	assert.Error(t, err)

	_, _, err = task.PlanTasks(map[string]any{
		packages.TaskKey: map[string]any{"tooling": map[string]any{"installer": "pipx install", "packages": []any{"../poetry"}}},
	}, []task.Spec{packages.Spec()})
	assert.Error(t, err)
}
