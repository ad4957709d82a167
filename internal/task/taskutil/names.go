package taskutil

import (
	"fmt"
	"regexp"
	"strings"
)

// NameKind names a class of host identifier with its own character rules.
type NameKind string

const (
	KindUser    NameKind = "user"
	KindGroup   NameKind = "group"
	KindPackage NameKind = "package"
	KindMarker  NameKind = "marker"
)

var nameRules = map[NameKind]*regexp.Regexp{
	// useradd's NAME_REGEX default, without the trailing '$' for machine accounts.
	KindUser:  regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`),
	KindGroup: regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`),
	// Debian policy 5.6.1, optionally qualified with an architecture.
	KindPackage: regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+(:[a-z0-9]+)?$`),
	KindMarker:  regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`),
}

// CheckName reports whether value is a valid kind name. Every valid name is
// also safe to place in a shell command or a path segment unquoted.
func CheckName(kind NameKind, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	rule, ok := nameRules[kind]
	if !ok {
		return fmt.Errorf("unknown name kind %q", kind)
	}
	if !rule.MatchString(value) {
		return fmt.Errorf("invalid %s name %q", kind, value)
	}
	return nil
}
