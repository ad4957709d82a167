package strutil

import "strings"

// CleanList returns a de-duplicated list of trimmed, non-empty strings.
func CleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// SplitList splits a comma separated flag value and cleans the parts.
func SplitList(value string) []string {
	return CleanList(strings.Split(value, ","))
}

// ShellEscape returns a single-quoted shell literal for value.
func ShellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// SedPattern escapes the sed delimiter inside an extended regular expression.
func SedPattern(pattern string) string {
	return strings.ReplaceAll(pattern, "/", `\/`)
}

// SedReplacement makes value a literal sed replacement.
func SedReplacement(value string) string {
	r := strings.NewReplacer(`\`, `\\`, "&", `\&`, "/", `\/`, "\n", `\n`)
	return r.Replace(value)
}

// Lines splits output into lines, dropping a trailing empty line.
func Lines(output string) []string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}
