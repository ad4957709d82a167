package ubuntu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/testutils/hosttest"
)

func TestAddUser(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	w := h.World()

	require.NoError(t, AddUser(ctx, h, "deploy", "s3cret", "sudo"))
	assert.Equal(t, "/home/deploy", w.Users["deploy"])
	assert.Equal(t, "s3cret", w.Passwords["deploy"])
	assert.Contains(t, w.Members["sudo"], "deploy")
	assert.Len(t, w.Ran("useradd -m -s /bin/bash -G 'sudo' 'deploy'"), 1)

	_, credsLeft := w.File("/tmp/hostprep.1")
	assert.False(t, credsLeft, "credentials file must be removed")
	assert.Equal(t, []string{"write /tmp/hostprep.1", "remove /tmp/hostprep.1"}, w.EditsOf("/tmp/hostprep.1"))
	assert.Len(t, w.Ran("chpasswd < '/tmp/hostprep.1'"), 1)

	err := AddUser(ctx, h, "deploy", "other", "")
	require.Error(t, err)
	assert.Equal(t, "s3cret", w.Passwords["deploy"])
}

func TestAddUserRejectsUnsafeNames(t *testing.T) {
	h := hosttest.New("203.0.113.10:22", "root")
	require.Error(t, AddUser(context.Background(), h, "bad name", "pw", ""))
	require.Error(t, AddUser(context.Background(), h, "deploy", "pw", "sudo;reboot"))
	assert.Empty(t, h.World().Commands)
}

func TestSetPasswordRejectsLineBreaks(t *testing.T) {
	h := hosttest.New("203.0.113.10:22", "root")
	require.Error(t, SetPassword(context.Background(), h, "root", "a\nb"))
}

// sshLikeServer fails the way SSHServer does, quoting the command in the error.
type sshLikeServer struct {
	commands []string
	inputs   []string
	fail     string
}

func (s *sshLikeServer) ID() string      { return "web1" }
func (s *sshLikeServer) Address() string { return "203.0.113.10:22" }

func (s *sshLikeServer) Execute(_ context.Context, cmd string) (string, error) {
	if cmd == "id -u" {
		return "1000\n", nil
	}
	s.commands = append(s.commands, cmd)
	if s.fail != "" && strings.Contains(cmd, s.fail) {
		return "", fmt.Errorf("command %q failed: exit status 1", cmd)
	}
	if strings.Contains(cmd, "mktemp") {
		return "/tmp/hostprep.Xy12Ab34Cd", nil
	}
	return "", nil
}

func (s *sshLikeServer) ExecuteInput(ctx context.Context, cmd string, input io.Reader) (string, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return "", err
	}
	s.inputs = append(s.inputs, string(data))
	return s.Execute(ctx, cmd)
}

func TestSetPasswordKeepsSecretOutOfLogsAndErrors(t *testing.T) {
	const password = "S3cretRootPw"

	for _, fail := range []string{"", "mktemp", "chpasswd"} {
		t.Run("fail="+fail, func(t *testing.T) {
			var logs bytes.Buffer
			srv := &sshLikeServer{fail: fail}
			h := host.NewRemote(srv, "deploy", zerolog.New(&logs).Level(zerolog.DebugLevel))

			err := SetPassword(context.Background(), h, "root", password)
			if fail == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.NotContains(t, err.Error(), password)
			}
			assert.NotEmpty(t, logs.String())
			assert.NotContains(t, logs.String(), password)
			for _, cmd := range srv.commands {
				assert.NotContains(t, cmd, password)
			}
			assert.Equal(t, []string{"root:" + password + "\n"}, srv.inputs)
		})
	}
}

func TestHomeDir(t *testing.T) {
	ctx := context.Background()
	h := hosttest.New("203.0.113.10:22", "root")
	h.World().AddUser("deploy", "/srv/deploy")

	home, err := HomeDir(ctx, h, "deploy")
	require.NoError(t, err)
	assert.Equal(t, "/srv/deploy", home)

	home, err = HomeDir(ctx, h, "missing")
	require.NoError(t, err)
	assert.Equal(t, "/home/missing", home)
}
