package host

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/strutil"
)

const (
	scriptOutputYes = "yes"
	scriptOutputNo  = "no"

	tempFileScript = `umask 077 && f=$(mktemp /tmp/hostprep.XXXXXXXXXX) && cat > "$f" && printf '%s' "$f"`
)

// Remote is a Host backed by a server.Server connection.
type Remote struct {
	srv    server.Server
	user   string
	logger zerolog.Logger
	prefix *string
}

// NewRemote wraps srv. user is the login name the connection uses.
func NewRemote(srv server.Server, user string, logger zerolog.Logger) *Remote {
	return &Remote{srv: srv, user: user, logger: logger}
}

func (r *Remote) ID() string      { return r.srv.ID() }
func (r *Remote) Address() string { return r.srv.Address() }
func (r *Remote) User() string    { return r.user }

func (r *Remote) With(o server.Override) (Host, error) {
	ov, ok := r.srv.(server.Overridable)
	if !ok {
		return nil, fmt.Errorf("server %s does not support connection overrides", r.srv.ID())
	}
	user := r.user
	if o.User != "" {
		user = o.User
	}
	return NewRemote(ov.With(o), user, r.logger), nil
}

func (r *Remote) Run(ctx context.Context, command string) (string, error) {
	r.logger.Debug().Str("server", r.srv.ID()).Str("command", command).Msg("Running remote command")
	return r.srv.Execute(ctx, command)
}

func (r *Remote) Sudo(ctx context.Context, command string) (string, error) {
	prefix, err := r.sudoPrefix(ctx)
	if err != nil {
		return "", err
	}
	r.logger.Debug().Str("server", r.srv.ID()).Str("command", command).Msg("Running remote command as superuser")
	return r.srv.Execute(ctx, elevate(prefix, command))
}

// sudoInput runs command as superuser with input on stdin. Only the input
// size is logged.
func (r *Remote) sudoInput(ctx context.Context, in server.InputExecutor, command, input string) (string, error) {
	prefix, err := r.sudoPrefix(ctx)
	if err != nil {
		return "", err
	}
	r.logger.Debug().Str("server", r.srv.ID()).Str("command", command).Int("input_bytes", len(input)).Msg("Running remote command as superuser")
	return in.ExecuteInput(ctx, elevate(prefix, command), strings.NewReader(input))
}

func (r *Remote) SudoPTY(ctx context.Context, command string) (string, error) {
	pty, ok := r.srv.(server.PTYExecutor)
	if !ok {
		return r.Sudo(ctx, command)
	}
	prefix, err := r.sudoPrefix(ctx)
	if err != nil {
		return "", err
	}
	r.logger.Debug().Str("server", r.srv.ID()).Str("command", command).Msg("Running remote command as superuser with pty")
	return pty.ExecutePTY(ctx, elevate(prefix, command))
}

func (r *Remote) Exists(ctx context.Context, path string) (bool, error) {
	return r.test(ctx, "[ -e "+strutil.ShellEscape(path)+" ]")
}

func (r *Remote) Contains(ctx context.Context, path, pattern string) (bool, error) {
	cond := fmt.Sprintf("grep -Eq -- %s %s 2>/dev/null", strutil.ShellEscape(pattern), strutil.ShellEscape(path))
	return r.test(ctx, cond)
}

func (r *Remote) ReadFile(ctx context.Context, path string) (string, error) {
	prefix, err := r.sudoPrefix(ctx)
	if err != nil {
		return "", err
	}
	output, missing, err := catOrMissing(ctx, r.srv, prefix, path)
	if err != nil {
		return "", err
	}
	if missing {
		return "", fmt.Errorf("read file %q: %w", path, fs.ErrNotExist)
	}
	return output, nil
}

func (r *Remote) WriteFile(ctx context.Context, path, content string, mode fs.FileMode) error {
	pathEsc := strutil.ShellEscape(path)
	var err error
	if in, ok := r.srv.(server.InputExecutor); ok {
		script := fmt.Sprintf("umask 077 && cat > %s && chmod %04o %s", pathEsc, mode.Perm(), pathEsc)
		_, err = r.sudoInput(ctx, in, script, content)
	} else {
		_, err = r.Sudo(ctx, fmt.Sprintf("printf '%%s' %s > %s && chmod %04o %s", strutil.ShellEscape(content), pathEsc, mode.Perm(), pathEsc))
	}
	if err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}

func (r *Remote) WriteTemp(ctx context.Context, content string) (string, error) {
	in, ok := r.srv.(server.InputExecutor)
	if !ok {
		return "", fmt.Errorf("server %s cannot stream file content", r.srv.ID())
	}
	output, err := r.sudoInput(ctx, in, tempFileScript, content)
	if err != nil {
		return "", fmt.Errorf("write temporary file: %w", err)
	}
	path := strings.TrimSpace(output)
	if !strings.HasPrefix(path, "/tmp/") {
		return "", fmt.Errorf("unexpected temporary file path %q", path)
	}
	return path, nil
}

func (r *Remote) CopyFile(ctx context.Context, src, dst string) error {
	if _, err := r.Sudo(ctx, "cp -fp "+strutil.ShellEscape(src)+" "+strutil.ShellEscape(dst)); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return nil
}

func (r *Remote) Remove(ctx context.Context, path string) error {
	if _, err := r.Sudo(ctx, "rm -rf "+strutil.ShellEscape(path)); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}

func (r *Remote) Mkdir(ctx context.Context, path string, mode fs.FileMode) error {
	pathEsc := strutil.ShellEscape(path)
	if _, err := r.Sudo(ctx, fmt.Sprintf("mkdir -p %s && chmod %04o %s", pathEsc, mode.Perm(), pathEsc)); err != nil {
		return fmt.Errorf("create directory %q: %w", path, err)
	}
	return nil
}

func (r *Remote) Sed(ctx context.Context, path, before, after string) error {
	expr := fmt.Sprintf("s/%s/%s/g", strutil.SedPattern(before), strutil.SedReplacement(after))
	if _, err := r.Sudo(ctx, "sed -i -E "+strutil.ShellEscape(expr)+" "+strutil.ShellEscape(path)); err != nil {
		return fmt.Errorf("edit %q: %w", path, err)
	}
	return nil
}

func (r *Remote) Uncomment(ctx context.Context, path, pattern string) error {
	expr := fmt.Sprintf(`/%s/ s/^([[:space:]]*)#[[:space:]]?/\1/`, strutil.SedPattern(pattern))
	if _, err := r.Sudo(ctx, "sed -i -E "+strutil.ShellEscape(expr)+" "+strutil.ShellEscape(path)); err != nil {
		return fmt.Errorf("uncomment %q: %w", path, err)
	}
	return nil
}

func (r *Remote) Append(ctx context.Context, path string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	pathEsc := strutil.ShellEscape(path)
	steps := make([]string, 0, len(lines))
	for _, line := range lines {
		lineEsc := strutil.ShellEscape(line)
		steps = append(steps, fmt.Sprintf("{ grep -qxF -- %s %s 2>/dev/null || printf '%%s\\n' %s >> %s; }", lineEsc, pathEsc, lineEsc, pathEsc))
	}
	if _, err := r.Sudo(ctx, strings.Join(steps, " && ")); err != nil {
		return fmt.Errorf("append to %q: %w", path, err)
	}
	return nil
}

func (r *Remote) test(ctx context.Context, cond string) (bool, error) {
	script := fmt.Sprintf("if %s; then echo %s; else echo %s; fi", cond, scriptOutputYes, scriptOutputNo)
	output, err := r.Sudo(ctx, script)
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(output) {
	case scriptOutputYes:
		return true, nil
	case scriptOutputNo:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected test output %q", strings.TrimSpace(output))
	}
}

func (r *Remote) sudoPrefix(ctx context.Context) (string, error) {
	if r.prefix != nil {
		return *r.prefix, nil
	}
	prefix, err := detectSudo(ctx, r.srv)
	if err != nil {
		return "", err
	}
	r.prefix = &prefix
	return prefix, nil
}
