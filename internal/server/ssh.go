package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHServer struct {
	name           string
	address        string
	user           User
	knownHostsPath string
	opts           SSHOptions
}

type SSHOptions struct {
	UseAgent         *bool
	HandshakeTimeout time.Duration
}

const (
	DefaultPort                = 22
	defaultSSHHandshakeTimeout = 15 * time.Second
)

func NewSSHServer(name, address string, user User, knownHostsPath string, opts SSHOptions) *SSHServer {
	return &SSHServer{
		name:           name,
		address:        address,
		user:           user,
		knownHostsPath: knownHostsPath,
		opts:           opts,
	}
}

func (s *SSHServer) ID() string      { return s.name }
func (s *SSHServer) Address() string { return s.address }

// With returns a copy of the server using the overridden login and port.
func (s *SSHServer) With(o Override) Server {
	cp := *s
	cp.user = s.user.apply(o)
	if o.Port > 0 {
		cp.address = WithPort(s.address, o.Port)
	}
	return &cp
}

func (s *SSHServer) Execute(ctx context.Context, command string) (string, error) {
	return s.run(ctx, command, false, nil)
}

// ExecutePTY runs command with a pseudo-terminal allocated on the session.
func (s *SSHServer) ExecutePTY(ctx context.Context, command string) (string, error) {
	return s.run(ctx, command, true, nil)
}

// ExecuteInput runs command with input streamed to its stdin.
func (s *SSHServer) ExecuteInput(ctx context.Context, command string, input io.Reader) (string, error) {
	return s.run(ctx, command, false, input)
}

func (s *SSHServer) run(ctx context.Context, command string, pty bool, input io.Reader) (string, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	// Closing the client unblocks a session stuck on a cancelled context.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session on %s: %w", s.name, err)
	}
	defer session.Close()

	if pty {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 40, 120, modes); err != nil {
			return "", fmt.Errorf("request pty on %s: %w", s.name, err)
		}
	}

	// sudo -n cannot ask for a password; hand it over on stdin ahead of any
	// input. sudo -S consumes exactly one line.
	if rest, ok := strings.CutPrefix(command, "sudo -n "); ok && s.user.SudoPassword != "" {
		command = "sudo -S -p '' " + rest
		password := strings.NewReader(s.user.SudoPassword + "\n")
		if input != nil {
			session.Stdin = io.MultiReader(password, input)
		} else {
			session.Stdin = password
		}
	} else if input != nil {
		session.Stdin = input
	}

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command %q failed: %w", command, err)
	}
	return string(output), nil
}

// dial connects and authenticates. Every failure up to a working client is
// reported as ErrUnreachable.
func (s *SSHServer) dial(ctx context.Context) (*ssh.Client, error) {
	addr := WithPort(s.address, Port(s.address))

	config, closeAgent, err := s.clientConfig()
	if err != nil {
		return nil, err
	}
	defer closeAgent()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", addr, ErrUnreachable, err)
	}
	if err := applyHandshakeDeadline(ctx, conn, s.handshakeTimeout()); err != nil {
		conn.Close()
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w: %w", addr, ErrUnreachable, err)
	}
	if err := clearDeadline(conn); err != nil {
		sshConn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (s *SSHServer) clientConfig() (*ssh.ClientConfig, func(), error) {
	authMethods, closeAgent, err := s.authMethods()
	if err != nil {
		return nil, closeAgent, err
	}
	knownHostsPath, err := resolveKnownHostsPath(s.knownHostsPath)
	if err != nil {
		return nil, closeAgent, err
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, closeAgent, fmt.Errorf("load known_hosts %q: %w", knownHostsPath, err)
	}
	return &ssh.ClientConfig{
		User:            s.user.Name,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}, closeAgent, nil
}

func (s *SSHServer) authMethods() ([]ssh.AuthMethod, func(), error) {
	authMethods := []ssh.AuthMethod{}
	closeAgent := func() {}

	// Prefer explicit key material before falling back to the agent.
	if s.user.SSHKey != "" {
		expandedPath, err := expandPath(s.user.SSHKey)
		if err != nil {
			return nil, closeAgent, fmt.Errorf("failed to expand ssh key path %q: %w", s.user.SSHKey, err)
		}
		key, err := os.ReadFile(expandedPath)
		if err != nil {
			return nil, closeAgent, fmt.Errorf("failed to read ssh key %q: %w", expandedPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, closeAgent, fmt.Errorf("failed to parse ssh key %q: %w", expandedPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if s.useAgent() {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if agentConn, err := net.Dial("unix", sock); err == nil {
				authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
				closeAgent = func() { agentConn.Close() }
			}
		}
	}

	if s.user.Password != "" {
		password := s.user.Password
		authMethods = append(authMethods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(authMethods) == 0 {
		return nil, closeAgent, fmt.Errorf("no ssh authentication methods available")
	}
	return authMethods, closeAgent, nil
}

func (s *SSHServer) useAgent() bool {
	if s.opts.UseAgent == nil {
		return true
	}
	return *s.opts.UseAgent
}

func (s *SSHServer) handshakeTimeout() time.Duration {
	if s.opts.HandshakeTimeout > 0 {
		return s.opts.HandshakeTimeout
	}
	return defaultSSHHandshakeTimeout
}

// Port returns the port part of address, or DefaultPort when none is given.
func Port(address string) int {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return DefaultPort
	}
	return port
}

// Host returns address without its port.
func Host(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return strings.Trim(address, "[]")
	}
	return host
}

// WithPort joins the host part of address with port.
func WithPort(address string, port int) string {
	return net.JoinHostPort(Host(address), strconv.Itoa(port))
}

func applyHandshakeDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	deadline, ok := handshakeDeadline(ctx, timeout)
	if !ok {
		return nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set ssh handshake deadline: %w", err)
	}
	return nil
}

func clearDeadline(conn net.Conn) error {
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear ssh handshake deadline: %w", err)
	}
	return nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	now := time.Now()
	if timeout > 0 {
		deadline = now.Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if deadline.IsZero() {
		return time.Time{}, false
	}
	return deadline, true
}

func resolveKnownHostsPath(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
