package ubuntu

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task/taskutil"
)

const listInstalledCmd = "dpkg -l | awk '/^ii/ {print $2}'"

func AptGetInstall(ctx context.Context, h host.Host, pkg string) error {
	return aptGet(ctx, h, "install", pkg)
}

func AptGetPurge(ctx context.Context, h host.Host, pkg string) error {
	return aptGet(ctx, h, "purge", pkg)
}

func aptGet(ctx context.Context, h host.Host, action, pkg string) error {
	if err := taskutil.CheckName(taskutil.KindPackage, pkg); err != nil {
		return err
	}
	cmd := fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get %s -qqy %s", action, pkg)
	if _, err := h.SudoPTY(ctx, cmd); err != nil {
		return fmt.Errorf("apt-get %s %s: %w", action, pkg, err)
	}
	return nil
}

// InstalledPackages lists installed package names without architecture
// suffixes.
func InstalledPackages(ctx context.Context, h host.Host) (map[string]struct{}, error) {
	output, err := h.Run(ctx, listInstalledCmd)
	if err != nil {
		return nil, fmt.Errorf("list installed packages: %w", err)
	}
	installed := make(map[string]struct{})
	for _, line := range strutil.Lines(output) {
		name, _, _ := strings.Cut(strings.TrimSpace(line), ":")
		if name != "" {
			installed[name] = struct{}{}
		}
	}
	return installed, nil
}

func PackageInstalled(ctx context.Context, h host.Host, pkg string) (bool, error) {
	installed, err := InstalledPackages(ctx, h)
	if err != nil {
		return false, err
	}
	_, ok := installed[pkg]
	return ok, nil
}
