package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/testutils/hosttest"
)

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	s := state.NewStore(h, "")

	ok, err := s.Exists(ctx, state.SSHPortChanged)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := s.Get(ctx, state.SSHPortChanged)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, state.SSHPortChanged, "22"))
	assert.True(t, h.World().Dirs[state.DefaultDir])

	value, found, err := s.Get(ctx, state.SSHPortChanged)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "22", value)

	ok, err = s.Exists(ctx, state.SSHPortChanged)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, state.SSHPortChanged))
	ok, err = s.Exists(ctx, state.SSHPortChanged)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkerNamesAreValidated(t *testing.T) {
	ctx := context.Background()
	s := state.NewStore(hosttest.New("203.0.113.10:22", "root"), "/tmp/state")

	for _, name := range []string{"", "../etc/passwd", "two words"} {
		require.Error(t, s.Set(ctx, name, ""), name)
		_, err := s.Exists(ctx, name)
		require.Error(t, err, name)
	}
}

func TestStoreOnSharesDirectory(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "deploy")
	s := state.NewStore(h, "/srv/state")

	root, err := h.With(server.Override{User: "root", Password: "toor"})
	require.NoError(t, err)
	require.NoError(t, s.On(root).Set(ctx, state.SudoAdded, ""))

	ok, err := s.Exists(ctx, state.SudoAdded)
	require.NoError(t, err)
	assert.True(t, ok)
	_, present := h.World().File("/srv/state/sudo_added")
	assert.True(t, present)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	w := h.World()
	s := state.NewStore(h, "")
	const conf = "/etc/ufw/ufw.conf"

	restored, err := s.Restore(ctx, conf, false)
	require.NoError(t, err)
	assert.False(t, restored)

	w.SetFile(conf, "ENABLED=no\n")
	require.NoError(t, s.Backup(ctx, conf))
	w.SetFile(conf, "ENABLED=yes\n")

	ok, err := s.HasBackup(ctx, conf)
	require.NoError(t, err)
	assert.True(t, ok)

	restored, err = s.Restore(ctx, conf, true)
	require.NoError(t, err)
	assert.True(t, restored)
	content, _ := w.File(conf)
	assert.Equal(t, "ENABLED=no\n", content)
	_, kept := w.File(conf + state.BackupSuffix)
	assert.True(t, kept)

	w.SetFile(conf, "ENABLED=yes\n")
	restored, err = s.Restore(ctx, conf, false)
	require.NoError(t, err)
	assert.True(t, restored)
	content, _ = w.File(conf)
	assert.Equal(t, "ENABLED=no\n", content)
	_, kept = w.File(conf + state.BackupSuffix)
	assert.False(t, kept)
}

func TestBackupOverwritesEarlierBackup(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	s := state.NewStore(h, "")

	h.World().SetFile("/etc/timezone", "Etc/UTC\n")
	require.NoError(t, s.Backup(ctx, "/etc/timezone"))
	h.World().SetFile("/etc/timezone", "Europe/Berlin\n")
	require.NoError(t, s.Backup(ctx, "/etc/timezone"))

	backup, _ := h.World().File(state.BackupPath("/etc/timezone"))
	assert.Equal(t, "Europe/Berlin\n", backup)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	l := state.NewStore(h, "").Ledger()
	assert.Equal(t, "/var/local/hostprep/packages_installed.txt", l.Path())

	pkgs, err := l.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	require.NoError(t, l.Append(ctx, "apache2"))
	require.NoError(t, l.Append(ctx, "nginx"))
	require.NoError(t, l.Append(ctx, "apache2"))

	pkgs, err = l.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"apache2", "nginx"}, pkgs)

	require.NoError(t, l.Write(ctx, []string{"nginx"}))
	content, _ := h.World().File(l.Path())
	assert.Equal(t, "nginx\n", content)

	require.NoError(t, l.Write(ctx, nil))
	_, present := h.World().File(l.Path())
	assert.False(t, present)
}
