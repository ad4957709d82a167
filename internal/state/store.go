// Package state keeps the per-host bookkeeping that makes provisioning
// skippable and reversible: named markers, file backups and the ledger of
// packages this tool installed.
package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/task/taskutil"
)

const (
	DefaultDir   = "/var/local/hostprep"
	BackupSuffix = ".hostprepbak"
	ledgerFile   = "packages_installed.txt"
)

// Marker names recorded by the built-in tasks.
const (
	SSHPortChanged          = "ssh_port_changed"
	SudoAdded               = "sudo_added"
	UFWInstalled            = "ufw_installed"
	SSHRestricted           = "ssh_restricted"
	UnattendedConfigCreated = "unattended_config_created"
	SSHDirCreated           = "ssh_dir_created"
	AuthorizedKeysCreated   = "authorized_keys_created"

	// ToolingInstalledPrefix is followed by the tooling package name.
	ToolingInstalledPrefix = "tooling_installed."
)

// Store reads and writes markers as files under a directory on the host.
type Store struct {
	host host.Host
	dir  string
}

func NewStore(h host.Host, dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{host: h, dir: dir}
}

// On returns a store for the same directory reached through h.
func (s *Store) On(h host.Host) *Store {
	return &Store{host: h, dir: s.dir}
}

func (s *Store) Dir() string { return s.dir }

// Set records the marker with an optional payload, replacing any earlier one.
func (s *Store) Set(ctx context.Context, name, content string) error {
	p, err := s.markerPath(name)
	if err != nil {
		return err
	}
	if err := s.ensureDir(ctx); err != nil {
		return err
	}
	if err := s.host.WriteFile(ctx, p, content, 0o600); err != nil {
		return fmt.Errorf("set marker %s: %w", name, err)
	}
	return nil
}

// Get returns the marker payload and whether the marker is set.
func (s *Store) Get(ctx context.Context, name string) (string, bool, error) {
	p, err := s.markerPath(name)
	if err != nil {
		return "", false, err
	}
	content, err := s.host.ReadFile(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get marker %s: %w", name, err)
	}
	return content, true, nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	p, err := s.markerPath(name)
	if err != nil {
		return false, err
	}
	ok, err := s.host.Exists(ctx, p)
	if err != nil {
		return false, fmt.Errorf("check marker %s: %w", name, err)
	}
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	p, err := s.markerPath(name)
	if err != nil {
		return err
	}
	if err := s.host.Remove(ctx, p); err != nil {
		return fmt.Errorf("delete marker %s: %w", name, err)
	}
	return nil
}

func (s *Store) markerPath(name string) (string, error) {
	if err := taskutil.CheckName(taskutil.KindMarker, name); err != nil {
		return "", err
	}
	return path.Join(s.dir, name), nil
}

func (s *Store) ensureDir(ctx context.Context) error {
	if err := s.host.Mkdir(ctx, s.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return nil
}
