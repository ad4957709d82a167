package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	sshconfig "github.com/kevinburke/ssh_config"
)

// Endpoint is a connection target after ssh client config resolution.
type Endpoint struct {
	Address string
	User    string
	SSHKey  string
}

// LoadSSHConfig decodes the OpenSSH client config at path. A missing file
// yields a nil config.
func LoadSSHConfig(path string) (*sshconfig.Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(home, ".ssh", "config")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config %q: %w", expanded, err)
	}
	defer f.Close()

	cfg, err := sshconfig.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse ssh config %q: %w", expanded, err)
	}
	return cfg, nil
}

// ResolveAlias fills the endpoint from a Host block matching alias. Values
// already present in ep win over the ssh config.
func ResolveAlias(cfg *sshconfig.Config, alias string, ep Endpoint) (Endpoint, error) {
	if cfg == nil {
		return ep, nil
	}
	host := Host(alias)

	hostName, err := cfg.Get(host, "HostName")
	if err != nil {
		return ep, fmt.Errorf("lookup HostName for %q: %w", host, err)
	}
	if hostName == "" {
		hostName = host
	}

	port := Port(alias)
	if port == DefaultPort {
		raw, err := cfg.Get(host, "Port")
		if err != nil {
			return ep, fmt.Errorf("lookup Port for %q: %w", host, err)
		}
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			port = p
		}
	}
	ep.Address = WithPort(hostName, port)

	if ep.User == "" {
		user, err := cfg.Get(host, "User")
		if err != nil {
			return ep, fmt.Errorf("lookup User for %q: %w", host, err)
		}
		ep.User = user
	}
	if ep.SSHKey == "" {
		key, err := cfg.Get(host, "IdentityFile")
		if err != nil {
			return ep, fmt.Errorf("lookup IdentityFile for %q: %w", host, err)
		}
		ep.SSHKey = key
	}
	return ep, nil
}
