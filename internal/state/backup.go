package state

import (
	"context"
	"fmt"
)

// BackupPath is where the backup of p lives.
func BackupPath(p string) string {
	return p + BackupSuffix
}

// Backup copies p next to itself, overwriting an earlier backup.
func (s *Store) Backup(ctx context.Context, p string) error {
	if err := s.host.CopyFile(ctx, p, BackupPath(p)); err != nil {
		return fmt.Errorf("backup %s: %w", p, err)
	}
	return nil
}

func (s *Store) HasBackup(ctx context.Context, p string) (bool, error) {
	ok, err := s.host.Exists(ctx, BackupPath(p))
	if err != nil {
		return false, fmt.Errorf("check backup of %s: %w", p, err)
	}
	return ok, nil
}

// Restore copies the backup of p back into place and removes it unless keep
// is set. It reports false when there was no backup.
func (s *Store) Restore(ctx context.Context, p string, keep bool) (bool, error) {
	ok, err := s.HasBackup(ctx, p)
	if err != nil || !ok {
		return false, err
	}
	if err := s.host.CopyFile(ctx, BackupPath(p), p); err != nil {
		return false, fmt.Errorf("restore %s: %w", p, err)
	}
	if keep {
		return true, nil
	}
	if err := s.DiscardBackup(ctx, p); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) DiscardBackup(ctx context.Context, p string) error {
	if err := s.host.Remove(ctx, BackupPath(p)); err != nil {
		return fmt.Errorf("discard backup of %s: %w", p, err)
	}
	return nil
}
