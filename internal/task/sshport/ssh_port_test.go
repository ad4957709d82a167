package sshport_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tpodg/hostprep/internal/sshd"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/sshport"
	"github.com/tpodg/hostprep/internal/testutils/hosttest"
	tasktests "github.com/tpodg/hostprep/internal/testutils/task"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const markerPath = state.DefaultDir + "/" + state.SSHPortChanged

func newHost() *hosttest.Host {
	h := hosttest.New("203.0.113.10:22", "deploy")
	h.World().SetFile("/etc/issue", "Ubuntu 22.04.3 LTS \\n \\l\n")
	h.World().SetFile(sshd.DefaultConfigPath, "Include /etc/ssh/sshd_config.d/*.conf\n#Port 22\nUseDNS no\n")
	return h
}

func TestChangeSSHPort(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, nil, sshport.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))

	config, _ := w.File(sshd.DefaultConfigPath)
	assert.Equal(t, "Include /etc/ssh/sshd_config.d/*.conf\nPort 10022\nUseDNS no\n", config)
	marker, ok := w.File(markerPath)
	require.True(t, ok)
	assert.Equal(t, "22", marker)

	restarts := w.Ran("service ssh restart")
	require.Len(t, restarts, 1)
	assert.Equal(t, "root", restarts[0].User)
	assert.Equal(t, "203.0.113.10:22", restarts[0].Address)

	// sshd now listens elsewhere.
	w.Unreachable[22] = true

	require.True(t, tasktests.Rollback(t, ctx, tk, env))
	config, _ = w.File(sshd.DefaultConfigPath)
	assert.Equal(t, "Include /etc/ssh/sshd_config.d/*.conf\nPort 22\nUseDNS no\n", config)
	_, ok = w.File(markerPath)
	assert.False(t, ok)

	restarts = w.Ran("service ssh restart")
	require.Len(t, restarts, 2)
	assert.Equal(t, "203.0.113.10:10022", restarts[1].Address)

	assert.False(t, tasktests.Rollback(t, ctx, tk, env), "second rollback has no marker")
}

func TestChangeSSHPortSocketActivated(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.SetFile("/etc/issue", "Ubuntu 24.04.1 LTS \\n \\l\n")
	w.OnCommand(func(c hosttest.Command) (string, bool, error) {
		if strings.HasPrefix(c.Cmd, "systemctl is-active ssh.socket") {
			return "active\n", true, nil
		}
		return "", false, nil
	})
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, nil, sshport.Spec())

	require.True(t, tasktests.Apply(t, ctx, tk, env))
	assert.Len(t, w.Ran("systemctl restart ssh.socket"), 1)
	assert.Empty(t, w.Ran("service ssh restart"))
}

func TestChangeSSHPortUnreachableDefaultPort(t *testing.T) {
	ctx := context.Background()
	h := newHost()
	w := h.World()
	w.Unreachable[22] = true
	before, _ := w.File(sshd.DefaultConfigPath)

	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, nil, sshport.Spec())

	output := tasktests.CaptureLog(env)
	assert.False(t, tasktests.Apply(t, ctx, tk, env))
	assert.Contains(t, output.String(), `"level":"warn"`)
	assert.Contains(t, output.String(), "Default port 22 not responding")

	after, _ := w.File(sshd.DefaultConfigPath)
	assert.Equal(t, before, after)
	assert.Empty(t, w.Edits)
	assert.Empty(t, w.Commands)
}

func TestChangeSSHPortSamePort(t *testing.T) {
	h := newHost()
	settings := tasktests.DefaultSettings()
	settings.SSHPort = settings.DefaultSSHPort
	env := tasktests.NewEnv(h, settings)

	tk := tasktests.PlanTask(t, nil, sshport.Spec())
	assert.False(t, tasktests.Apply(t, context.Background(), tk, env))
	assert.Empty(t, h.World().Edits)
}

func TestChangeSSHPortRejectsOldRelease(t *testing.T) {
	h := newHost()
	h.World().SetFile("/etc/issue", "Ubuntu 18.04.6 LTS \\n \\l\n")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())

	tk := tasktests.PlanTask(t, nil, sshport.Spec())
	_, err := tk.Apply(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ubuntu.ErrUnsupportedRelease))
	assert.Empty(t, h.World().Edits)
}

func TestChangeSSHPortAlreadyConfigured(t *testing.T) {
	h := newHost()
	h.World().SetFile(sshd.DefaultConfigPath, "Port 10022\n")
	env := tasktests.NewEnv(h, tasktests.DefaultSettings())
	tk := tasktests.PlanTask(t, nil, sshport.Spec())

	output := tasktests.CaptureLog(env)
	assert.False(t, tasktests.Apply(t, context.Background(), tk, env))
	assert.True(t, strings.Contains(output.String(), "already uses port 10022"), output.String())
}

func TestSpecDisabled(t *testing.T) {
	tasks, _, err := task.PlanTasks(map[string]any{sshport.TaskKey: map[string]any{"enabled": false}}, []task.Spec{sshport.Spec()})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
