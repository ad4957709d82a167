package task

import (
	"embed"
	"fmt"
	"maps"
	"path"
	"slices"

	"github.com/goccy/go-yaml"
)

//go:embed defaults
var defaultsFS embed.FS

// Spec is one catalogue entry: the config key, the embedded defaults file and
// the builder that turns merged options into tasks.
type Spec struct {
	Key          string
	DefaultsPath string
	Builder      Builder
}

func SpecFor[T any](key, defaultsPath string, build func(T) ([]Task, error)) Spec {
	return Spec{Key: key, DefaultsPath: defaultsPath, Builder: BuilderFor(key, build)}
}

// PlanTasks layers the per-server overrides on top of each spec's defaults and
// builds the tasks in spec order. Override keys no spec claims are returned
// sorted as unknown.
func PlanTasks(overrides map[string]any, specs []Spec) ([]Task, []string, error) {
	merged := make(map[string]any, len(specs))
	builders := make([]Builder, 0, len(specs))
	for _, spec := range specs {
		if _, dup := merged[spec.Key]; dup {
			return nil, nil, fmt.Errorf("duplicate task key: %s", spec.Key)
		}
		defaults, err := defaultsFor(spec)
		if err != nil {
			return nil, nil, err
		}
		merged[spec.Key] = overlay(defaults, overrides[spec.Key])
		builders = append(builders, spec.Builder)
	}

	tasks, _, err := CreateTasks(merged, builders...)
	if err != nil {
		return nil, nil, err
	}

	var unknown []string
	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		if _, ok := merged[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return tasks, unknown, nil
}

// SelectSpecs narrows specs to the keys in only (every spec when only is
// empty) and drops the keys in skip. Catalogue order is kept and a key that
// names no spec is an error.
func SelectSpecs(specs []Spec, only, skip []string) ([]Spec, error) {
	for _, key := range slices.Concat(only, skip) {
		if !slices.ContainsFunc(specs, func(s Spec) bool { return s.Key == key }) {
			return nil, fmt.Errorf("unknown task %q", key)
		}
	}
	return slices.DeleteFunc(slices.Clone(specs), func(s Spec) bool {
		if len(only) > 0 && !slices.Contains(only, s.Key) {
			return true
		}
		return slices.Contains(skip, s.Key)
	}), nil
}

func defaultsFor(spec Spec) (map[string]any, error) {
	if spec.DefaultsPath == "" {
		return nil, nil
	}
	data, err := defaultsFS.ReadFile(path.Join("defaults", spec.DefaultsPath))
	if err != nil {
		return nil, fmt.Errorf("read defaults for %s: %w", spec.Key, err)
	}
	defaults := map[string]any{}
	if len(data) == 0 {
		return defaults, nil
	}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("parse defaults for %s: %w", spec.Key, err)
	}
	return defaults, nil
}

// overlay merges override onto base. Nested maps merge key by key; any other
// override value, lists included, replaces the base value outright.
func overlay(base map[string]any, override any) any {
	if override == nil {
		if base == nil {
			return nil
		}
		return maps.Clone(base)
	}
	top, ok := override.(map[string]any)
	if !ok {
		return override
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(top))
	}
	for key, value := range top {
		if nested, ok := out[key].(map[string]any); ok {
			if _, isMap := value.(map[string]any); isMap {
				out[key] = overlay(nested, value)
				continue
			}
		}
		out[key] = value
	}
	return out
}
