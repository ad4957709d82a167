// Package ubuntu holds the distribution specific building blocks shared by
// the provisioning tasks.
package ubuntu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tpodg/hostprep/internal/host"
)

const issuePath = "/etc/issue"

var ErrUnsupportedRelease = errors.New("unsupported release")

// Release is the distribution name and version from /etc/issue.
type Release struct {
	Name string
	// Version is the numeric reading of VersionText; 9.10 reads as 9.1.
	Version     float64
	VersionText string
	// Numeric is false when the version token is not a number.
	Numeric bool
	Major   int
	Minor   int
}

func (r Release) String() string {
	return strings.TrimSpace(r.Name + " " + r.VersionText)
}

// ParseRelease reads the first two words of an /etc/issue line such as
// "Ubuntu 22.04.3 LTS \n \l".
func ParseRelease(issue string) Release {
	fields := strings.Fields(issue)
	var r Release
	if len(fields) > 0 {
		r.Name = fields[0]
	}
	if len(fields) < 2 {
		return r
	}
	r.VersionText = fields[1]

	parts := strings.Split(r.VersionText, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return r
	}
	minor := 0
	if len(parts) > 1 {
		if minor, err = strconv.Atoi(parts[1]); err != nil {
			return r
		}
	}
	version, err := strconv.ParseFloat(strings.Join(parts[:min(len(parts), 2)], "."), 64)
	if err != nil {
		return r
	}
	r.Version = version
	r.Major = major
	r.Minor = minor
	r.Numeric = true
	return r
}

// AtLeast compares major and minor numbers against a "major.minor" string.
// A release without a numeric version is never at least anything.
func (r Release) AtLeast(minimum string) (bool, error) {
	want := ParseRelease("x " + minimum)
	if !want.Numeric {
		return false, fmt.Errorf("invalid minimum version %q", minimum)
	}
	if !r.Numeric {
		return false, nil
	}
	if r.Major != want.Major {
		return r.Major > want.Major, nil
	}
	return r.Minor >= want.Minor, nil
}

// Version reads the release of the host.
func Version(ctx context.Context, h host.Host) (Release, error) {
	issue, err := h.ReadFile(ctx, issuePath)
	if err != nil {
		return Release{}, fmt.Errorf("read release: %w", err)
	}
	return ParseRelease(issue), nil
}

// RequireRelease fails with ErrUnsupportedRelease unless the host runs
// Ubuntu at or above minimum.
func RequireRelease(ctx context.Context, h host.Host, minimum string) (Release, error) {
	r, err := Version(ctx, h)
	if err != nil {
		return r, err
	}
	if !strings.EqualFold(r.Name, "Ubuntu") {
		return r, fmt.Errorf("%w: %s is not Ubuntu", ErrUnsupportedRelease, r)
	}
	ok, err := r.AtLeast(minimum)
	if err != nil {
		return r, err
	}
	if !ok {
		return r, fmt.Errorf("%w: %s is older than %s", ErrUnsupportedRelease, r, minimum)
	}
	return r, nil
}
