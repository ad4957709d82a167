package taskutil

import (
	"bufio"
	"strings"
)

const maxScanTokenSize = 1024 * 1024

func HasExactLine(output, line string) (bool, error) {
	found := false
	if err := ScanLines(output, func(text string) {
		if text == line {
			found = true
		}
	}); err != nil {
		return false, err
	}
	return found, nil
}

func ScanLines(output string, fn func(string)) error {
	scanner := bufio.NewScanner(strings.NewReader(output))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxScanTokenSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}

// ParseKeyValueSettings reads "Key value" config lines such as sshd_config.
// Keys and values are lowercased, comments are dropped and the first
// occurrence of a key wins.
func ParseKeyValueSettings(output string) (map[string]string, error) {
	settings := make(map[string]string)
	err := ScanLines(output, func(text string) {
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return
		}
		key := strings.ToLower(fields[0])
		if _, exists := settings[key]; exists {
			return
		}
		settings[key] = strings.ToLower(strings.Join(fields[1:], " "))
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}
