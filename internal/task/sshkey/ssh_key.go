package sshkey

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/tpodg/hostprep/internal/state"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
	"github.com/tpodg/hostprep/internal/task/taskutil"
	"github.com/tpodg/hostprep/internal/ubuntu"
)

const TaskKey = "ssh_key"

type Config struct {
	Enabled   bool   `yaml:"enabled"`
	PublicKey string `yaml:"public_key"`
	SSHDir    string `yaml:"ssh_dir"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "ssh_key.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return []task.Task{NewTask(afero.NewOsFs(), cfg)}, nil
}

// NewTask returns the upload task reading local keys from fsys.
func NewTask(fsys afero.Fs, cfg Config) *UploadSSHKeyTask {
	return &UploadSSHKeyTask{fs: fsys, sshDir: cfg.SSHDir, publicKey: cfg.PublicKey}
}

// UploadSSHKeyTask adds the operator's public key to the login user's
// authorized_keys.
type UploadSSHKeyTask struct {
	fs        afero.Fs
	sshDir    string
	publicKey string
}

func (t *UploadSSHKeyTask) Name() string {
	return "upload ssh key"
}

type remotePaths struct {
	user           string
	sshDir         string
	authorizedKeys string
}

// AuthorizedKeysPath returns the authorized_keys file of user.
func AuthorizedKeysPath(ctx context.Context, env *task.Env, user string) (string, error) {
	paths, err := resolvePaths(ctx, env, user)
	if err != nil {
		return "", err
	}
	return paths.authorizedKeys, nil
}

func resolvePaths(ctx context.Context, env *task.Env, user string) (remotePaths, error) {
	home, err := ubuntu.HomeDir(ctx, env.Host, user)
	if err != nil {
		return remotePaths{}, err
	}
	dir := path.Join(home, ".ssh")
	return remotePaths{
		user:           user,
		sshDir:         dir,
		authorizedKeys: path.Join(dir, "authorized_keys"),
	}, nil
}

func (t *UploadSSHKeyTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	keyPath, key, err := FindPublicKey(t.fs, t.sshDir, t.publicKey)
	if err != nil {
		if errors.Is(err, ErrNoPublicKey) {
			env.Logger.Warn().Err(err).Msg("Skipping ssh key upload")
			return false, nil
		}
		return false, err
	}

	paths, err := resolvePaths(ctx, env, env.Host.User())
	if err != nil {
		return false, err
	}

	dirExists, err := env.Host.Exists(ctx, paths.sshDir)
	if err != nil {
		return false, err
	}
	fileExists, err := env.Host.Exists(ctx, paths.authorizedKeys)
	if err != nil {
		return false, err
	}

	if fileExists {
		current, err := env.Host.ReadFile(ctx, paths.authorizedKeys)
		if err != nil {
			return false, err
		}
		present, err := taskutil.HasExactLine(current, key)
		if err != nil {
			return false, err
		}
		if present {
			env.Logger.Debug().Str("key", keyPath).Msg("Public key already authorized")
			return false, nil
		}
		if err := env.State.Backup(ctx, paths.authorizedKeys); err != nil {
			return false, err
		}
	}

	if !dirExists {
		if err := env.Host.Mkdir(ctx, paths.sshDir, 0o700); err != nil {
			return false, err
		}
		if err := env.State.Set(ctx, state.SSHDirCreated, paths.sshDir); err != nil {
			return false, err
		}
	}
	if !fileExists {
		if err := env.State.Set(ctx, state.AuthorizedKeysCreated, paths.authorizedKeys); err != nil {
			return false, err
		}
	}

	env.Logger.Info().Str("key", keyPath).Msg("Uploading public key")
	if err := env.Host.Append(ctx, paths.authorizedKeys, key); err != nil {
		return false, err
	}
	if err := fixPermissions(ctx, env, paths); err != nil {
		return false, err
	}
	return true, nil
}

func fixPermissions(ctx context.Context, env *task.Env, paths remotePaths) error {
	dir := strutil.ShellEscape(paths.sshDir)
	script := fmt.Sprintf("chown -R %s: %s && chmod 700 %s && chmod 600 %s",
		strutil.ShellEscape(paths.user), dir, dir, strutil.ShellEscape(paths.authorizedKeys))
	if _, err := env.Host.Sudo(ctx, script); err != nil {
		return fmt.Errorf("fix permissions of %s: %w", paths.sshDir, err)
	}
	return nil
}

// Rollback removes only what the upload added: it restores a backup, or
// removes a .ssh directory or authorized_keys file this tool created, or
// drops the uploaded key line from a file that existed before.
func (t *UploadSSHKeyTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	paths, err := resolvePaths(ctx, env, env.Host.User())
	if err != nil {
		return false, err
	}

	restored, err := env.State.Restore(ctx, paths.authorizedKeys, false)
	if err != nil || restored {
		return restored, err
	}

	dirCreated, err := env.State.Exists(ctx, state.SSHDirCreated)
	if err != nil {
		return false, err
	}
	if dirCreated {
		if err := env.Host.Remove(ctx, paths.sshDir); err != nil {
			return false, err
		}
		if err := env.State.Delete(ctx, state.SSHDirCreated); err != nil {
			return false, err
		}
		return true, env.State.Delete(ctx, state.AuthorizedKeysCreated)
	}

	fileCreated, err := env.State.Exists(ctx, state.AuthorizedKeysCreated)
	if err != nil {
		return false, err
	}
	if fileCreated {
		if err := env.Host.Remove(ctx, paths.authorizedKeys); err != nil {
			return false, err
		}
		return true, env.State.Delete(ctx, state.AuthorizedKeysCreated)
	}

	return t.removeKeyLine(ctx, env, paths)
}

func (t *UploadSSHKeyTask) removeKeyLine(ctx context.Context, env *task.Env, paths remotePaths) (bool, error) {
	_, key, err := FindPublicKey(t.fs, t.sshDir, t.publicKey)
	if err != nil {
		if errors.Is(err, ErrNoPublicKey) {
			return false, nil
		}
		return false, err
	}
	current, err := env.Host.ReadFile(ctx, paths.authorizedKeys)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	var kept []string
	removed := false
	for _, line := range strutil.Lines(current) {
		if line == key {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return false, nil
	}
	content := strings.Join(kept, "\n")
	if content != "" {
		content += "\n"
	}
	if err := env.Host.WriteFile(ctx, paths.authorizedKeys, content, 0o600); err != nil {
		return false, err
	}
	return true, nil
}
