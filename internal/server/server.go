package server

import (
	"context"
	"errors"
	"io"
)

// ErrUnreachable is returned when a connection to the server cannot be
// established (dial or SSH handshake failure).
var ErrUnreachable = errors.New("server unreachable")

// Server represents a remote server that can be configured.
type Server interface {
	// ID returns a unique identifier for the server.
	ID() string
	// Address returns the connection address (IP or hostname, optionally with port).
	Address() string
	// Execute runs a command on the server.
	Execute(ctx context.Context, command string) (string, error)
}

// PTYExecutor is implemented by servers that can run a command with a
// pseudo-terminal attached, for programs that insist on one.
type PTYExecutor interface {
	ExecutePTY(ctx context.Context, command string) (string, error)
}

// InputExecutor is implemented by servers that can feed a command's stdin.
// Content passed this way never shows up in the remote process list.
type InputExecutor interface {
	ExecuteInput(ctx context.Context, command string, input io.Reader) (string, error)
}

// Overridable is implemented by servers whose connection settings can be
// swapped for a nested block of operations.
type Overridable interface {
	With(o Override) Server
}
