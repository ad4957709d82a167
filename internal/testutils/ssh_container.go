package testutils

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHContainer is a disposable OpenSSH host. Its login user has passwordless
// sudo and accepts both the generated key and Password.
type SSHContainer struct {
	Container      testcontainers.Container
	Address        string
	User           string
	Password       string
	KeyPath        string
	PublicKey      string
	KnownHostsPath string
}

const (
	defaultSSHImage   = "linuxserver/openssh-server:version-10.0_p1-r10"
	containerUser     = "testuser"
	containerPassword = "testpass"
	startupTimeout    = 30 * time.Second
	loginTimeout      = 15 * time.Second
)

// SetupSSHContainer starts the container, waits until the user can log in and
// terminates it when the test ends. The image can be swapped with
// HOSTPREP_TEST_SSH_IMAGE.
func SetupSSHContainer(t *testing.T, ctx context.Context) *SSHContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("container tests are skipped in short mode")
	}

	dir := t.TempDir()
	signer, keyPath, authorized := writeClientKey(t, dir)

	image := os.Getenv("HOSTPREP_TEST_SSH_IMAGE")
	if image == "" {
		image = defaultSSHImage
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"2222/tcp"},
			Env: map[string]string{
				"PUBLIC_KEY":      authorized,
				"USER_NAME":       containerUser,
				"USER_PASSWORD":   containerPassword,
				"PASSWORD_ACCESS": "true",
				"SUDO_ACCESS":     "true",
			},
			WaitingFor: wait.ForListeningPort("2222/tcp").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start ssh container: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate ssh container: %v", err)
		}
	})

	hostName, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "2222")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	address := net.JoinHostPort(hostName, port.Port())

	hostKey, err := waitForLogin(ctx, address, signer)
	if err != nil {
		t.Fatalf("wait for ssh login: %v", err)
	}
	knownHostsPath := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{address}, hostKey) + "\n"
	if err := os.WriteFile(knownHostsPath, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	return &SSHContainer{
		Container:      c,
		Address:        address,
		User:           containerUser,
		Password:       containerPassword,
		KeyPath:        keyPath,
		PublicKey:      authorized,
		KnownHostsPath: knownHostsPath,
	}
}

func writeClientKey(t *testing.T, dir string) (ssh.Signer, string, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "hostprep test")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("client signer: %v", err)
	}
	return signer, keyPath, string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
}

// waitForLogin retries a key login until it succeeds and returns the host key
// the server presented. The listening port opens before the user is created.
func waitForLogin(ctx context.Context, address string, signer ssh.Signer) (ssh.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var lastErr error
	for {
		hostKey, err := tryLogin(ctx, address, signer)
		if err == nil {
			return hostKey, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func tryLogin(ctx context.Context, address string, signer ssh.Signer) (ssh.PublicKey, error) {
	var hostKey ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: containerUser,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			hostKey = key
			return nil
		},
		Timeout: 5 * time.Second,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	cc, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		return nil, err
	}
	client := ssh.NewClient(cc, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()
	if err := session.Run("true"); err != nil {
		return nil, err
	}
	return hostKey, nil
}
