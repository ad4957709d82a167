package task

import (
	"github.com/rs/zerolog"
	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/prompt"
	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/state"
)

// Settings is the per-server configuration every task may consult.
type Settings struct {
	// LoginUser is the personal account used after root is disabled.
	LoginUser     string
	LoginPassword string
	// DefaultSSHPort is where sshd listens on a fresh install.
	DefaultSSHPort int
	// SSHPort is the port sshd is moved to.
	SSHPort      int
	RootPassword string
	Interactive  bool
}

// Env is what a task works with: the host, its state store, the operator
// and the settings.
type Env struct {
	Host     host.Host
	State    *state.Store
	Prompt   prompt.Prompter
	Settings Settings
	Logger   zerolog.Logger
}

// As returns a copy of the environment reached through an overridden
// connection. The state store follows the new connection.
func (e *Env) As(o server.Override) (*Env, error) {
	h, err := e.Host.With(o)
	if err != nil {
		return nil, err
	}
	cp := *e
	cp.Host = h
	cp.State = e.State.On(h)
	return &cp, nil
}

// AsRoot reconnects as root with the configured root password on port.
func (e *Env) AsRoot(port int) (*Env, error) {
	return e.As(server.Override{User: "root", Password: e.Settings.RootPassword, Port: port})
}
