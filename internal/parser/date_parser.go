package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dmyRegex      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	relativeRegex = regexp.MustCompile(`^(\d+)\s*(day|days|week|weeks)\s+ago$`)
)

// ParseDate reads a calendar date for range flags. Supported formats:
//   - yyyy-mm-dd (e.g., "2025-03-01")
//   - dd/mm/yyyy (e.g., "01/03/2025")
//   - "today", "yesterday"
//   - "X days ago", "X weeks ago"
//
// The result is midnight of that date in loc; now anchors the relative forms.
func ParseDate(input string, now time.Time, loc *time.Location) (time.Time, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch input {
	case "":
		return time.Time{}, fmt.Errorf("empty date")
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if t, err := time.ParseInLocation(time.DateOnly, input, loc); err == nil {
		return t, nil
	}
	if m := dmyRegex.FindStringSubmatch(input); len(m) == 4 {
		return parseDMY(m[1], m[2], m[3], loc)
	}
	if m := relativeRegex.FindStringSubmatch(input); len(m) == 3 {
		amount, err := strconv.Atoi(m[1])
		if err != nil || amount > 3650 {
			return time.Time{}, fmt.Errorf("invalid amount %q", m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			amount *= 7
		}
		return today.AddDate(0, 0, -amount), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q. Use: yyyy-mm-dd, dd/mm/yyyy, today, yesterday, or X days ago", input)
}

func parseDMY(dayStr, monthStr, yearStr string, loc *time.Location) (time.Time, error) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	year, _ := strconv.Atoi(yearStr)

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month must be between 1 and 12")
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow, e.g. 31/02 becomes early March
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("invalid date")
	}
	return t, nil
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -(weekday - 1))
}

// FormatMinutes renders minutes as "1h 30m", "45m" or "2h".
func FormatMinutes(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
