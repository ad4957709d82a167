// Package host is the remote side every provisioning task talks to: command
// execution as the login user or as superuser, plus the small set of file
// edits the tasks need.
package host

import (
	"context"
	"io/fs"

	"github.com/tpodg/hostprep/internal/server"
)

// Host runs commands and edits files on one target machine. File operations
// run as superuser.
type Host interface {
	ID() string
	Address() string
	// User is the account the connection logs in as.
	User() string

	Run(ctx context.Context, command string) (string, error)
	Sudo(ctx context.Context, command string) (string, error)
	// SudoPTY is Sudo with a pseudo-terminal when the transport offers one.
	SudoPTY(ctx context.Context, command string) (string, error)

	Exists(ctx context.Context, path string) (bool, error)
	// Contains reports whether a line of path matches the extended regular
	// expression pattern. A missing file contains nothing.
	Contains(ctx context.Context, path, pattern string) (bool, error)
	// ReadFile returns an error wrapping fs.ErrNotExist for missing files.
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string, mode fs.FileMode) error
	// WriteTemp stores content in a new root-only file under /tmp and returns
	// its path. The content never appears on a command line.
	WriteTemp(ctx context.Context, content string) (string, error)
	// CopyFile copies src over dst keeping mode and ownership.
	CopyFile(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string, mode fs.FileMode) error
	// Sed replaces every match of the extended regular expression before
	// with the literal after.
	Sed(ctx context.Context, path, before, after string) error
	// Uncomment strips the leading '#' from lines matching pattern.
	Uncomment(ctx context.Context, path, pattern string) error
	// Append adds each line that is not already present verbatim.
	Append(ctx context.Context, path string, lines ...string) error

	// With returns a host reached through an overridden login or port.
	With(o server.Override) (Host, error)
}

// Port returns the SSH port the host is reached on.
func Port(h Host) int {
	return server.Port(h.Address())
}
