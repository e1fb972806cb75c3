package parser

import (
	"regexp"
	"strings"
)

// ParsedActivity is a session description with its inline metadata pulled out
type ParsedActivity struct {
	Activity string
	Project  string
	Category string
	Priority string
	TaskRef  string
	Errors   []string
}

var (
	taskRefRegex  = regexp.MustCompile(`\b([A-Za-z]+)-(\d+)\b`)
	categoryRegex = regexp.MustCompile(`#([a-zA-Z0-9_-]+)`)
	projectRegex  = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)
	priorityRegex = regexp.MustCompile(`\+([a-zA-Z0-9]+)`)
)

// ParseActivity extracts metadata from a free-text activity.
// Syntax: "fix login redirect @apollo #review +high APP-123"
func ParseActivity(input string) ParsedActivity {
	result := ParsedActivity{Errors: []string{}}

	// Task references look like APP-123; only the first one is kept
	if m := taskRefRegex.FindString(input); m != "" {
		ref, err := NormalizeTaskRef(m)
		if err != nil {
			result.Errors = append(result.Errors, "Invalid task reference: "+m)
		} else {
			result.TaskRef = ref
		}
		input = taskRefRegex.ReplaceAllString(input, "")
	}

	if m := categoryRegex.FindStringSubmatch(input); len(m) > 1 {
		result.Category = strings.ToLower(m[1])
		input = categoryRegex.ReplaceAllString(input, "")
	}

	if m := projectRegex.FindStringSubmatch(input); len(m) > 1 {
		result.Project = m[1]
		input = projectRegex.ReplaceAllString(input, "")
	}

	if m := priorityRegex.FindStringSubmatch(input); len(m) > 1 {
		priority := strings.ToLower(m[1])
		if IsValidPriority(priority) {
			result.Priority = NormalizePriority(priority)
		} else {
			result.Errors = append(result.Errors, "Invalid priority '"+m[1]+"'. Use: low, medium, high, 1, 2, or 3")
		}
		input = priorityRegex.ReplaceAllString(input, "")
	}

	result.Activity = strings.Join(strings.Fields(input), " ")
	return result
}

// IsValidPriority accepts low, medium, high or 1-3
func IsValidPriority(priority string) bool {
	switch priority {
	case "low", "medium", "med", "high", "1", "2", "3":
		return true
	}
	return false
}

// NormalizePriority converts priority to standard form
func NormalizePriority(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "1", "low":
		return "low"
	case "3", "high":
		return "high"
	default:
		return "medium"
	}
}
