package sshkey

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
)

// KeyPreference is the search order for public keys in the local ssh
// directory.
var KeyPreference = []string{
	"id_ed25519.pub",
	"id_ecdsa.pub",
	"id_rsa.pub",
	"id_dsa.pub",
}

// ErrNoPublicKey is returned when no local public key could be found.
var ErrNoPublicKey = errors.New("no local public key found")

// FindPublicKey returns the path and authorized_keys line of the key to
// upload: explicit when set, otherwise the first key of KeyPreference in
// sshDir.
func FindPublicKey(fsys afero.Fs, sshDir, explicit string) (string, string, error) {
	candidates := make([]string, 0, len(KeyPreference))
	if explicit != "" {
		path, err := expandHome(explicit)
		if err != nil {
			return "", "", err
		}
		candidates = append(candidates, path)
	} else {
		dir, err := expandHome(sshDir)
		if err != nil {
			return "", "", err
		}
		for _, name := range KeyPreference {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	for _, path := range candidates {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", "", fmt.Errorf("read public key %q: %w", path, err)
		}
		line, err := authorizedKeyLine(data)
		if err != nil {
			return "", "", fmt.Errorf("parse public key %q: %w", path, err)
		}
		return path, line, nil
	}
	if explicit != "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoPublicKey, explicit)
	}
	return "", "", ErrNoPublicKey
}

// authorizedKeyLine validates the key and returns its first line.
func authorizedKeyLine(data []byte) (string, error) {
	if _, _, _, _, err := ssh.ParseAuthorizedKey(data); err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return strings.TrimSpace(line), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
