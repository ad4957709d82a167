package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	sshconfig "github.com/kevinburke/ssh_config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSSHConfig = `
Host web1
  HostName 203.0.113.10
  User deploy
  Port 10022
  IdentityFile ~/.ssh/web1_ed25519

Host db1
  HostName 203.0.113.20
`

func TestResolveAlias(t *testing.T) {
	cfg, err := sshconfig.Decode(strings.NewReader(sampleSSHConfig))
	require.NoError(t, err)

	t.Run("fills empty fields", func(t *testing.T) {
		ep, err := ResolveAlias(cfg, "web1", Endpoint{})
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.10:10022", ep.Address)
		assert.Equal(t, "deploy", ep.User)
		assert.Equal(t, "~/.ssh/web1_ed25519", ep.SSHKey)
	})

	t.Run("explicit values win", func(t *testing.T) {
		ep, err := ResolveAlias(cfg, "web1:2200", Endpoint{User: "alice", SSHKey: "/keys/alice"})
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.10:2200", ep.Address)
		assert.Equal(t, "alice", ep.User)
		assert.Equal(t, "/keys/alice", ep.SSHKey)
	})

	t.Run("host without port", func(t *testing.T) {
		ep, err := ResolveAlias(cfg, "db1", Endpoint{})
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.20:22", ep.Address)
	})

	t.Run("unknown alias keeps address", func(t *testing.T) {
		ep, err := ResolveAlias(cfg, "198.51.100.7", Endpoint{User: "root"})
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.7:22", ep.Address)
		assert.Equal(t, "root", ep.User)
	})

	t.Run("nil config", func(t *testing.T) {
		ep, err := ResolveAlias(nil, "web1", Endpoint{Address: "web1"})
		require.NoError(t, err)
		assert.Equal(t, "web1", ep.Address)
	})
}

func TestLoadSSHConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadSSHConfig(filepath.Join(t.TempDir(), "config"))
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("present file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config")
		require.NoError(t, os.WriteFile(path, []byte(sampleSSHConfig), 0o600))
		cfg, err := LoadSSHConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		user, err := cfg.Get("web1", "User")
		require.NoError(t, err)
		assert.Equal(t, "deploy", user)
	})
}
