package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/hostprep/internal/server"
	"github.com/tpodg/hostprep/internal/strutil"
)

// missingMarker is printed in place of a file's content when it does not exist.
const missingMarker = "__HOSTPREP_MISSING__"

// detectSudo returns the prefix that runs a command as root: nothing when the
// login user already is root, non-interactive sudo otherwise.
func detectSudo(ctx context.Context, s server.Server) (string, error) {
	uid, err := s.Execute(ctx, "id -u")
	if err != nil {
		return "", fmt.Errorf("look up remote uid: %w", err)
	}
	if strings.TrimSpace(uid) == "0" {
		return "", nil
	}
	return "sudo -n ", nil
}

func elevate(prefix, script string) string {
	return prefix + "sh -c " + strutil.ShellEscape(script)
}

// catOrMissing reads path through sudo. missing is true when the file is absent.
func catOrMissing(ctx context.Context, s server.Server, prefix, path string) (content string, missing bool, err error) {
	marker := missingMarker + ":" + path
	p := strutil.ShellEscape(path)
	script := "if [ -f " + p + " ]; then cat " + p + "; else printf '%s' " + strutil.ShellEscape(marker) + "; fi"
	out, err := s.Execute(ctx, elevate(prefix, script))
	if err != nil {
		return "", false, fmt.Errorf("read file %q: %w", path, err)
	}
	if strings.TrimSpace(out) == marker {
		return "", true, nil
	}
	return out, false, nil
}
