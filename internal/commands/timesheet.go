package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/app"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/parser"
	"github.com/balkashynov/worklog/internal/rounding"
)

var timesheetCmd = &cobra.Command{
	Use:   "timesheet",
	Short: "Show the weekly timesheet of billable hours",
	Long: `Show a weekly timesheet of billable time grouped by activity and day.

Only completed sessions count, using their rounded billable minutes.
Weekdays are always shown, weekend days only when they have work.

Example output:
  Activity                  Mon    Tue    Wed    Thu    Fri    Total
  APP-123 Fix login bug    2.00   0.75      -      -      -     2.75
  review                      -   1.50   0.25      -      -     1.75
  Total                    2.00   2.25   0.25      0      0     4.50`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		userID, err := currentUser(a)
		if err != nil {
			return err
		}
		loc := a.Config.Location()
		day := time.Now().In(loc)
		if week, _ := cmd.Flags().GetString("week"); week != "" {
			if day, err = parser.ParseDate(week, day, loc); err != nil {
				return fmt.Errorf("--week: %w", err)
			}
		}
		weekStart := parser.WeekStart(day)

		sessions, err := a.Store.ListSessions(cmd.Context(), models.SessionFilter{
			UserID: userID,
			Status: models.StatusCompleted,
			Range:  models.DateRange{From: weekStart.UTC(), To: weekStart.AddDate(0, 0, 7).UTC()},
		})
		if err != nil {
			return fmt.Errorf("failed to get sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintf(out, "No billable time tracked in the week of %s.\n", weekStart.Format("Jan 2, 2006"))
			return nil
		}
		buildTimesheet(sessions, loc).print(out, weekStart)
		return nil
	}),
}

func init() {
	timesheetCmd.Flags().String("week", "", "Any date inside the week to show (default this week)")
}

// timesheet holds billable minutes per activity key and weekday
type timesheet struct {
	minutes    map[string]map[time.Weekday]int
	activeDays map[time.Weekday]bool
}

func buildTimesheet(sessions []models.WorkSession, loc *time.Location) timesheet {
	ts := timesheet{
		minutes:    make(map[string]map[time.Weekday]int),
		activeDays: make(map[time.Weekday]bool),
	}
	for _, s := range sessions {
		if s.BillableDurationMinutes == 0 {
			continue
		}
		key := timesheetKey(s)
		weekday := s.StartedAt.In(loc).Weekday()
		if ts.minutes[key] == nil {
			ts.minutes[key] = make(map[time.Weekday]int)
		}
		ts.minutes[key][weekday] += s.BillableDurationMinutes
		ts.activeDays[weekday] = true
	}
	return ts
}

// timesheetKey groups sessions by task reference first, then by activity
func timesheetKey(s models.WorkSession) string {
	activity := s.Activity
	if activity == "" {
		activity = s.Category
	}
	if s.TaskRef != "" {
		return s.TaskRef + " " + activity
	}
	return activity
}

// days lists Mon-Fri plus any weekend day that has work
func (ts timesheet) days() []time.Weekday {
	var days []time.Weekday
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		if (d >= time.Monday && d <= time.Friday) || ts.activeDays[d] {
			days = append(days, d)
		}
	}
	return days
}

func (ts timesheet) print(out io.Writer, weekStart time.Time) {
	keys := make([]string, 0, len(ts.minutes))
	for k := range ts.minutes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyWidth := 20
	for _, k := range keys {
		if len(k) > keyWidth {
			keyWidth = len(k)
		}
	}
	if keyWidth > 40 {
		keyWidth = 40
	}
	const colWidth = 7
	days := ts.days()

	separator := func() {
		fmt.Fprint(out, strings.Repeat("-", keyWidth))
		for range days {
			fmt.Fprint(out, strings.Repeat(" ", 2)+strings.Repeat("-", colWidth-2))
		}
		fmt.Fprintln(out, "  "+strings.Repeat("-", colWidth-2))
	}

	fmt.Fprintf(out, "%-*s", keyWidth, "Activity")
	for _, d := range days {
		fmt.Fprintf(out, "  %*s", colWidth-2, d.String()[:3])
	}
	fmt.Fprintf(out, "  %*s\n", colWidth-2, "Total")
	separator()

	dayTotals := make(map[time.Weekday]int)
	grandTotal := 0
	for _, k := range keys {
		label := k
		if len(label) > keyWidth {
			label = label[:keyWidth-3] + "..."
		}
		fmt.Fprintf(out, "%-*s", keyWidth, label)
		rowTotal := 0
		for _, d := range days {
			m := ts.minutes[k][d]
			if m > 0 {
				fmt.Fprintf(out, "  %*s", colWidth-2, hours(m))
			} else {
				fmt.Fprintf(out, "  %*s", colWidth-2, "-")
			}
			dayTotals[d] += m
			rowTotal += m
		}
		fmt.Fprintf(out, "  %*s\n", colWidth-2, hours(rowTotal))
		grandTotal += rowTotal
	}

	separator()
	fmt.Fprintf(out, "%-*s", keyWidth, "Total")
	for _, d := range days {
		if dayTotals[d] > 0 {
			fmt.Fprintf(out, "  %*s", colWidth-2, hours(dayTotals[d]))
		} else {
			fmt.Fprintf(out, "  %*s", colWidth-2, "0")
		}
	}
	fmt.Fprintf(out, "  %*s\n", colWidth-2, hours(grandTotal))

	fmt.Fprintf(out, "\nWeek of %s to %s\n",
		weekStart.Format("Jan 2"),
		weekStart.AddDate(0, 0, 6).Format("Jan 2, 2006"))
}

func hours(minutes int) string {
	return fmt.Sprintf("%.2f", rounding.Hours(minutes))
}
