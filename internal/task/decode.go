package task

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// DecodeConfig converts merged options, as read from YAML into plain maps,
// into T by round-tripping them through go-yaml. Keys that T does not
// declare are rejected. Nil options decode to the zero T.
func DecodeConfig[T any](options any) (T, error) {
	var cfg T
	if options == nil {
		return cfg, nil
	}
	doc, err := yaml.Marshal(options)
	if err != nil {
		return cfg, fmt.Errorf("encode options: %w", err)
	}
	if err := yaml.UnmarshalWithOptions(doc, &cfg, yaml.DisallowUnknownField()); err != nil {
		return cfg, fmt.Errorf("decode options: %w", err)
	}
	return cfg, nil
}

// BuilderFor wraps a typed build function so that it receives decoded options.
func BuilderFor[T any](key string, build func(T) ([]Task, error)) Builder {
	handler := func(options any) ([]Task, error) {
		cfg, err := DecodeConfig[T](options)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return build(cfg)
	}
	return Builder{Key: key, Handler: handler}
}
