package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/models"
)

func newStartFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "start"}
	cmd.Flags().String("module", "", "")
	cmd.Flags().String("category", "", "")
	cmd.Flags().String("priority", "", "")
	cmd.Flags().String("project", "", "")
	cmd.Flags().String("order", "", "")
	cmd.Flags().String("task", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestStartAttributesInlineSyntax(t *testing.T) {
	attrs, err := startAttributes(newStartFlags(t), []string{"fix", "login", "@apollo", "#Review", "+3", "app-12"})
	if err != nil {
		t.Fatalf("startAttributes: %v", err)
	}
	if attrs.Activity != "fix login" {
		t.Errorf("Activity = %q", attrs.Activity)
	}
	if attrs.ProjectRef != "apollo" || attrs.Category != "review" || attrs.Priority != "high" || attrs.TaskRef != "APP-12" {
		t.Errorf("attrs = %+v", attrs)
	}
}

func TestStartAttributesFlagsWin(t *testing.T) {
	cmd := newStartFlags(t,
		"--module", "billing",
		"--category", "Meeting",
		"--priority", "low",
		"--project", "hermes",
		"--order", "PO-7",
		"--task", "ops-9",
	)
	attrs, err := startAttributes(cmd, []string{"sync", "@apollo", "#review", "+high", "APP-1"})
	if err != nil {
		t.Fatalf("startAttributes: %v", err)
	}
	want := models.Attributes{
		Module:     "billing",
		Activity:   "sync",
		Category:   "meeting",
		Priority:   "low",
		ProjectRef: "hermes",
		OrderRef:   "PO-7",
		TaskRef:    "OPS-9",
	}
	if attrs != want {
		t.Errorf("attrs = %+v, want %+v", attrs, want)
	}
}

func TestStartAttributesErrors(t *testing.T) {
	if _, err := startAttributes(newStartFlags(t), []string{"x", "+urgent"}); err == nil {
		t.Error("inline bad priority: expected error")
	}
	if _, err := startAttributes(newStartFlags(t, "--priority", "urgent"), nil); err == nil {
		t.Error("flag bad priority: expected error")
	}
	if _, err := startAttributes(newStartFlags(t, "--task", "nope"), nil); err == nil {
		t.Error("bad task ref: expected error")
	}
}

func TestDescribeSession(t *testing.T) {
	tests := []struct {
		session models.WorkSession
		want    string
	}{
		{models.WorkSession{Activity: "coding", Category: "implementation"}, "coding #implementation"},
		{models.WorkSession{Category: "review"}, "(no activity) #review"},
		{models.WorkSession{Activity: "fix", TaskRef: "APP-1", ProjectRef: "apollo", Category: "bug"}, "fix APP-1 @apollo #bug"},
	}
	for _, tt := range tests {
		if got := describeSession(&tt.session); got != tt.want {
			t.Errorf("describeSession() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Second: "30s",
		5 * time.Minute:  "5m",
		90 * time.Minute: "1.5h",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestCalendarDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	got := calendarDate(time.Date(2025, 3, 1, 0, 0, 0, 0, berlin))
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("calendarDate = %v, want %v", got, want)
	}
}

func TestTimesheet(t *testing.T) {
	monday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	sessions := []models.WorkSession{
		{Activity: "fix login", TaskRef: "APP-1", StartedAt: monday, BillableDurationMinutes: 45},
		{Activity: "fix login", TaskRef: "APP-1", StartedAt: monday.Add(3 * time.Hour), BillableDurationMinutes: 30},
		{Category: "review", StartedAt: monday.AddDate(0, 0, 1), BillableDurationMinutes: 15},
		{Activity: "weekend", StartedAt: monday.AddDate(0, 0, 5), BillableDurationMinutes: 60},
		{Activity: "nothing billed", StartedAt: monday, BillableDurationMinutes: 0},
	}
	ts := buildTimesheet(sessions, time.UTC)

	if got := ts.minutes["APP-1 fix login"][time.Monday]; got != 75 {
		t.Errorf("APP-1 Monday = %d minutes, want 75", got)
	}
	if _, ok := ts.minutes["nothing billed"]; ok {
		t.Error("zero billable sessions must not appear")
	}
	days := ts.days()
	if len(days) != 6 || days[5] != time.Saturday {
		t.Errorf("days = %v, want Mon-Fri plus Saturday", days)
	}

	var buf bytes.Buffer
	ts.print(&buf, monday.Truncate(24*time.Hour))
	out := buf.String()
	for _, want := range []string{"Activity", "Sat", "APP-1 fix login", "1.25", "review", "0.25", "2.50", "Week of Mar 3 to Mar 9, 2025"} {
		if !strings.Contains(out, want) {
			t.Errorf("timesheet output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Sun") {
		t.Errorf("empty Sunday should be hidden:\n%s", out)
	}
}

func TestFormatDetails(t *testing.T) {
	got := formatDetails(map[string]string{"raw_minutes": "20", "billable_minutes": "30"})
	if want := "billable_minutes=30 raw_minutes=20"; got != want {
		t.Errorf("formatDetails = %q, want %q", got, want)
	}
	if got := formatDetails(nil); got != "" {
		t.Errorf("formatDetails(nil) = %q", got)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Status"}, [][]string{{"abc", "completed"}})
	for _, want := range []string{"ID", "Status", "abc", "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)
	if got := buf.String(); got != "worklog 1.2.3 (commit abc, built today)\n" {
		t.Errorf("version output = %q", got)
	}
}
