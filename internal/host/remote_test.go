package host

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tpodg/hostprep/internal/server"
)

type stubServer struct {
	uid      string
	address  string
	commands []string
	ptyCalls []string
	inputs   []string
	reply    func(cmd string) (string, error)
}

func (s *stubServer) ID() string      { return "stub" }
func (s *stubServer) Address() string { return s.address }

func (s *stubServer) Execute(_ context.Context, cmd string) (string, error) {
	if cmd == "id -u" {
		return s.uid + "\n", nil
	}
	s.commands = append(s.commands, cmd)
	if s.reply != nil {
		return s.reply(cmd)
	}
	return "", nil
}

func (s *stubServer) ExecutePTY(_ context.Context, cmd string) (string, error) {
	s.ptyCalls = append(s.ptyCalls, cmd)
	return "", nil
}

func (s *stubServer) ExecuteInput(ctx context.Context, cmd string, input io.Reader) (string, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return "", err
	}
	s.inputs = append(s.inputs, string(data))
	return s.Execute(ctx, cmd)
}

func (s *stubServer) With(o server.Override) server.Server {
	cp := *s
	cp.commands = nil
	if o.Port > 0 {
		cp.address = server.WithPort(s.address, o.Port)
	}
	return &cp
}

type plainServer struct{}

func (plainServer) ID() string      { return "plain" }
func (plainServer) Address() string { return "10.0.0.1:22" }
func (plainServer) Execute(context.Context, string) (string, error) {
	return "0", nil
}

type recordingServer struct {
	commands *[]string
}

func (recordingServer) ID() string      { return "recording" }
func (recordingServer) Address() string { return "10.0.0.1:22" }
func (s recordingServer) Execute(_ context.Context, cmd string) (string, error) {
	if cmd == "id -u" {
		return "0\n", nil
	}
	*s.commands = append(*s.commands, cmd)
	return "", nil
}

func TestRemoteSudoPrefix(t *testing.T) {
	ctx := context.Background()

	t.Run("root runs without sudo", func(t *testing.T) {
		srv := &stubServer{uid: "0"}
		r := NewRemote(srv, "root", zerolog.Nop())
		_, err := r.Sudo(ctx, "ufw reload")
		require.NoError(t, err)
		assert.Equal(t, []string{"sh -c 'ufw reload'"}, srv.commands)
	})

	t.Run("non-root uses sudo and caches the lookup", func(t *testing.T) {
		srv := &stubServer{uid: "1000"}
		r := NewRemote(srv, "deploy", zerolog.Nop())
		_, err := r.Sudo(ctx, "ufw reload")
		require.NoError(t, err)
		_, err = r.Sudo(ctx, "service ssh restart")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"sudo -n sh -c 'ufw reload'",
			"sudo -n sh -c 'service ssh restart'",
		}, srv.commands)
	})

	t.Run("run uses the login user", func(t *testing.T) {
		srv := &stubServer{uid: "1000"}
		r := NewRemote(srv, "deploy", zerolog.Nop())
		_, err := r.Run(ctx, "cat /etc/issue")
		require.NoError(t, err)
		assert.Equal(t, []string{"cat /etc/issue"}, srv.commands)
	})
}

func TestRemoteSudoPTY(t *testing.T) {
	srv := &stubServer{uid: "0"}
	r := NewRemote(srv, "root", zerolog.Nop())
	_, err := r.SudoPTY(context.Background(), "apt-get install -qqy ufw")
	require.NoError(t, err)
	assert.Empty(t, srv.commands)
	assert.Equal(t, []string{"sh -c 'apt-get install -qqy ufw'"}, srv.ptyCalls)

	plain := NewRemote(plainServer{}, "root", zerolog.Nop())
	_, err = plain.SudoPTY(context.Background(), "true")
	require.NoError(t, err)
}

func TestRemoteTests(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		output string
		want   bool
		err    bool
	}{
		{name: "yes", output: "yes\n", want: true},
		{name: "no", output: "no\n", want: false},
		{name: "garbage", output: "maybe", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &stubServer{uid: "0", reply: func(string) (string, error) { return tc.output, nil }}
			r := NewRemote(srv, "root", zerolog.Nop())
			got, err := r.Contains(ctx, "/etc/group", "^sudo:")
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, srv.commands[0], "grep -Eq")
		})
	}
}

func TestRemoteReadFileMissing(t *testing.T) {
	srv := &stubServer{uid: "0", reply: func(cmd string) (string, error) {
		return "__HOSTPREP_MISSING__:/etc/timezone", nil
	}}
	r := NewRemote(srv, "root", zerolog.Nop())
	_, err := r.ReadFile(context.Background(), "/etc/timezone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRemoteFileEdits(t *testing.T) {
	ctx := context.Background()
	srv := &stubServer{uid: "0"}
	r := NewRemote(srv, "root", zerolog.Nop())

	require.NoError(t, r.Sed(ctx, "/etc/ufw/ufw.conf", "ENABLED=no", "ENABLED=yes"))
	require.NoError(t, r.Uncomment(ctx, "/etc/apt/sources.list", "deb http://archive universe"))
	require.NoError(t, r.Append(ctx, "/tmp/sudoers.tmp", "%sudo ALL=(ALL) ALL"))
	require.NoError(t, r.Append(ctx, "/tmp/empty"))
	require.NoError(t, r.WriteFile(ctx, "/etc/timezone", "Europe/Berlin\n", 0o644))

	require.Len(t, srv.commands, 4)
	assert.Contains(t, srv.commands[0], "s/ENABLED=no/ENABLED=yes/g")
	assert.Contains(t, srv.commands[1], `deb http:\/\/archive universe`)
	assert.Contains(t, srv.commands[2], "grep -qxF")
	assert.True(t, strings.Contains(srv.commands[3], "chmod 0644"), srv.commands[3])
	assert.NotContains(t, srv.commands[3], "Europe/Berlin")
	assert.Equal(t, []string{"Europe/Berlin\n"}, srv.inputs)
}

func TestRemoteWriteFileWithoutInput(t *testing.T) {
	var cmds []string
	srv := &recordingServer{commands: &cmds}
	r := NewRemote(srv, "root", zerolog.Nop())
	require.NoError(t, r.WriteFile(context.Background(), "/etc/timezone", "Europe/Berlin\n", 0o644))
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "printf")

	_, err := r.WriteTemp(context.Background(), "root:pw\n")
	require.Error(t, err)
	assert.Len(t, cmds, 1)
}

func TestRemoteWriteTemp(t *testing.T) {
	ctx := context.Background()
	srv := &stubServer{uid: "1000", reply: func(string) (string, error) {
		return "/tmp/hostprep.a1b2c3d4e5", nil
	}}
	r := NewRemote(srv, "deploy", zerolog.Nop())

	p, err := r.WriteTemp(ctx, "root:pw\n")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/hostprep.a1b2c3d4e5", p)
	require.Len(t, srv.commands, 1)
	assert.Contains(t, srv.commands[0], "umask 077")
	assert.Contains(t, srv.commands[0], "mktemp")
	assert.NotContains(t, srv.commands[0], "root:pw")
	assert.Equal(t, []string{"root:pw\n"}, srv.inputs)

	srv.reply = func(string) (string, error) { return "sudo: a password is required\n", nil }
	_, err = r.WriteTemp(ctx, "root:pw\n")
	require.Error(t, err)
}

func TestRemoteWith(t *testing.T) {
	srv := &stubServer{uid: "1000", address: "10.0.0.1:22"}
	r := NewRemote(srv, "deploy", zerolog.Nop())

	root, err := r.With(server.Override{User: "root", Port: 2222})
	require.NoError(t, err)
	assert.Equal(t, "root", root.User())
	assert.Equal(t, 2222, Port(root))
	assert.Equal(t, "deploy", r.User())

	_, err = NewRemote(plainServer{}, "root", zerolog.Nop()).With(server.Override{User: "root"})
	require.Error(t, err)
}
