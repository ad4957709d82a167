package sshd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/task/taskutil"
)

const (
	DefaultConfigPath         = "/etc/ssh/sshd_config"
	KeyPort                   = "Port"
	KeyPasswordAuthentication = "PasswordAuthentication"
	ValueNo                   = "no"

	restartCmd       = "service ssh restart"
	socketActiveCmd  = "systemctl is-active ssh.socket 2>/dev/null || true"
	socketRestartCmd = "systemctl daemon-reload && systemctl restart ssh.socket"
)

var (
	passwordAuthKeyLower = strings.ToLower(KeyPasswordAuthentication)
	portKeyLower         = strings.ToLower(KeyPort)
)

// CommentedPasswordAuthPattern matches the commented out
// "PasswordAuthentication no" line shipped by the sshd_config template.
const CommentedPasswordAuthPattern = `^[[:space:]]*#[[:space:]]*PasswordAuthentication[[:space:]]+no`

var configPaths = []string{
	DefaultConfigPath,
}

func ReadConfig(ctx context.Context, h host.Host) (string, string, error) {
	for _, path := range configPaths {
		output, err := h.ReadFile(ctx, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", "", err
		}
		return path, output, nil
	}
	return "", "", fmt.Errorf("sshd config not found (checked: %s)", strings.Join(configPaths, ", "))
}

// SetPort rewrites a "Port from" line, commented or not, to "Port to".
func SetPort(ctx context.Context, h host.Host, from, to int) error {
	before := fmt.Sprintf(`^#?[[:space:]]*%s[[:space:]]+%d[[:space:]]*$`, KeyPort, from)
	after := fmt.Sprintf("%s %d", KeyPort, to)
	if err := h.Sed(ctx, DefaultConfigPath, before, after); err != nil {
		return fmt.Errorf("set ssh port %d: %w", to, err)
	}
	return nil
}

// Restart makes sshd pick up config changes. Socket activated hosts (Ubuntu
// 22.10 and later) take the listening port from ssh.socket, which is
// regenerated from sshd_config on daemon-reload.
func Restart(ctx context.Context, h host.Host) error {
	state, err := h.Sudo(ctx, socketActiveCmd)
	if err != nil {
		return fmt.Errorf("check ssh.socket: %w", err)
	}
	cmd := restartCmd
	if strings.TrimSpace(state) == "active" {
		cmd = socketRestartCmd
	}
	if _, err := h.Sudo(ctx, cmd); err != nil {
		return fmt.Errorf("restart ssh: %w", err)
	}
	return nil
}

// ConfiguredPort returns the first Port setting, or 22 when there is none.
func ConfiguredPort(config string) (int, error) {
	settings, err := taskutil.ParseKeyValueSettings(config)
	if err != nil {
		return 0, err
	}
	raw, ok := settings[portKeyLower]
	if !ok {
		return 22, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid Port setting %q", raw)
	}
	return port, nil
}

func PasswordAuthDisabled(config string) (bool, error) {
	settings, err := taskutil.ParseKeyValueSettings(config)
	if err != nil {
		return false, err
	}
	return settings[passwordAuthKeyLower] == ValueNo, nil
}
