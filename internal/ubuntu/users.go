package ubuntu

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task/taskutil"
)

// AddUser creates name with a home directory and bash shell, optionally in
// group, and sets its password. An existing account fails in useradd.
func AddUser(ctx context.Context, h host.Host, name, password, group string) error {
	if err := taskutil.CheckName(taskutil.KindUser, name); err != nil {
		return err
	}
	cmd := "useradd -m -s /bin/bash"
	if group != "" {
		if err := taskutil.CheckName(taskutil.KindGroup, group); err != nil {
			return err
		}
		cmd += " -G " + strutil.ShellEscape(group)
	}
	if _, err := h.Sudo(ctx, cmd+" "+strutil.ShellEscape(name)); err != nil {
		return fmt.Errorf("add user %s: %w", name, err)
	}
	return SetPassword(ctx, h, name, password)
}

// SetPassword feeds "name:password" to chpasswd through a root-only temporary
// file that is removed right after.
func SetPassword(ctx context.Context, h host.Host, name, password string) error {
	if strings.ContainsAny(password, "\n\r") {
		return fmt.Errorf("password for %s contains a line break", name)
	}
	credsPath, err := h.WriteTemp(ctx, name+":"+password+"\n")
	if err != nil {
		return fmt.Errorf("stage credentials for %s: %w", name, err)
	}
	_, chpasswdErr := h.Sudo(ctx, "chpasswd < "+strutil.ShellEscape(credsPath))
	if err := h.Remove(ctx, credsPath); err != nil {
		return err
	}
	if chpasswdErr != nil {
		return fmt.Errorf("set password for %s: %w", name, chpasswdErr)
	}
	return nil
}

// HomeDir looks up the home directory of name, falling back to /home/<name>
// when the account is unknown.
func HomeDir(ctx context.Context, h host.Host, name string) (string, error) {
	output, err := h.Run(ctx, "getent passwd "+strutil.ShellEscape(name))
	if err != nil {
		if strings.TrimSpace(output) == "" {
			return "/home/" + name, nil
		}
		return "", fmt.Errorf("lookup user %q: %w", name, err)
	}
	fields := strings.Split(strings.TrimSpace(output), ":")
	if len(fields) < 6 || fields[5] == "" {
		return "", fmt.Errorf("unexpected passwd entry for %q: %s", name, strings.TrimSpace(output))
	}
	return fields[5], nil
}
