package timezone

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tpodg/hostprep/internal/strutil"
	"github.com/tpodg/hostprep/internal/task"
)

const TaskKey = "timezone"

const (
	TimezonePath  = "/etc/timezone"
	localtimePath = "/etc/localtime"
	zoneinfoDir   = "/usr/share/zoneinfo"
	reconfigure   = "dpkg-reconfigure --frontend noninteractive tzdata"
)

var zonePattern = regexp.MustCompile(`^[A-Za-z0-9_+-]+(/[A-Za-z0-9_+-]+)*$`)

type Config struct {
	Enabled bool   `yaml:"enabled"`
	Zone    string `yaml:"zone"`
}

func Spec() task.Spec {
	return task.SpecFor(TaskKey, "timezone.yaml", buildTasks)
}

func buildTasks(cfg Config) ([]task.Task, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if !zonePattern.MatchString(cfg.Zone) {
		return nil, fmt.Errorf("%s: invalid zone %q", TaskKey, cfg.Zone)
	}
	return []task.Task{&SetTimezoneTask{zone: cfg.Zone}}, nil
}

type SetTimezoneTask struct {
	zone string
}

func (t *SetTimezoneTask) Name() string {
	return "set timezone"
}

func (t *SetTimezoneTask) Apply(ctx context.Context, env *task.Env) (bool, error) {
	current, err := env.Host.Contains(ctx, TimezonePath, "^"+regexp.QuoteMeta(t.zone)+"$")
	if err != nil {
		return false, err
	}
	if current {
		env.Logger.Debug().Str("zone", t.zone).Msg("Timezone already set")
		return false, nil
	}

	exists, err := env.Host.Exists(ctx, TimezonePath)
	if err != nil {
		return false, err
	}
	if exists {
		if err := env.State.Backup(ctx, TimezonePath); err != nil {
			return false, err
		}
	}

	env.Logger.Info().Str("zone", t.zone).Msg("Changing timezone")
	if err := env.Host.WriteFile(ctx, TimezonePath, t.zone+"\n", 0o644); err != nil {
		return false, err
	}
	if err := linkLocaltime(ctx, env, t.zone); err != nil {
		return false, err
	}
	if err := t.reconfigure(ctx, env); err != nil {
		return false, err
	}
	return true, nil
}

func (t *SetTimezoneTask) reconfigure(ctx context.Context, env *task.Env) error {
	if output, err := env.Host.Sudo(ctx, reconfigure); err != nil {
		return fmt.Errorf("reconfigure tzdata: %w\n%s", err, output)
	}
	return nil
}

func linkLocaltime(ctx context.Context, env *task.Env, zone string) error {
	link := fmt.Sprintf("ln -sf %s %s", strutil.ShellEscape(zoneinfoDir+"/"+zone), localtimePath)
	if _, err := env.Host.Sudo(ctx, link); err != nil {
		return fmt.Errorf("link %s: %w", localtimePath, err)
	}
	return nil
}

// Rollback restores the previous /etc/timezone and points /etc/localtime back
// at that zone. tzdata derives /etc/timezone from the link, so the link has to
// move before reconfiguring.
func (t *SetTimezoneTask) Rollback(ctx context.Context, env *task.Env) (bool, error) {
	restored, err := env.State.Restore(ctx, TimezonePath, false)
	if err != nil || !restored {
		return false, err
	}
	content, err := env.Host.ReadFile(ctx, TimezonePath)
	if err != nil {
		return false, err
	}
	previous := strings.TrimSpace(content)
	if !zonePattern.MatchString(previous) {
		return false, fmt.Errorf("restored %s holds invalid zone %q", TimezonePath, previous)
	}
	if err := linkLocaltime(ctx, env, previous); err != nil {
		return false, err
	}
	if err := t.reconfigure(ctx, env); err != nil {
		return false, err
	}
	return true, nil
}
