package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tpodg/hostprep/internal/strutil"
)

// Ledger lists the packages this tool installed on the host, one per line.
type Ledger struct {
	store *Store
}

func (s *Store) Ledger() *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) Path() string {
	return path.Join(l.store.dir, ledgerFile)
}

func (l *Ledger) Read(ctx context.Context) ([]string, error) {
	content, err := l.store.host.ReadFile(ctx, l.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package ledger: %w", err)
	}
	return strutil.CleanList(strutil.Lines(content)), nil
}

func (l *Ledger) Append(ctx context.Context, pkg string) error {
	if err := l.store.ensureDir(ctx); err != nil {
		return err
	}
	if err := l.store.host.Append(ctx, l.Path(), pkg); err != nil {
		return fmt.Errorf("record package %s: %w", pkg, err)
	}
	return nil
}

// Write replaces the ledger. An empty list removes the file.
func (l *Ledger) Write(ctx context.Context, pkgs []string) error {
	pkgs = strutil.CleanList(pkgs)
	if len(pkgs) == 0 {
		if err := l.store.host.Remove(ctx, l.Path()); err != nil {
			return fmt.Errorf("clear package ledger: %w", err)
		}
		return nil
	}
	if err := l.store.ensureDir(ctx); err != nil {
		return err
	}
	if err := l.store.host.WriteFile(ctx, l.Path(), strings.Join(pkgs, "\n")+"\n", 0o644); err != nil {
		return fmt.Errorf("write package ledger: %w", err)
	}
	return nil
}
