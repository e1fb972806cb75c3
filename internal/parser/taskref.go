package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var taskRefFormat = regexp.MustCompile(`^([A-Z]+)-(\d+)$`)

// NormalizeTaskRef uppercases tracker references such as "app-123".
// Empty input is valid and stays empty.
func NormalizeTaskRef(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if !taskRefFormat.MatchString(ref) {
		return "", fmt.Errorf("invalid task reference %q. Use: XXX-111 (letters-numbers)", ref)
	}
	return ref, nil
}
