package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/app"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/parser"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List work sessions",
	Long: `List the user's work sessions, oldest first.

Examples:
  worklog sessions
  worklog sessions --status completed --limit 5
  worklog sessions --json`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		userID, err := currentUser(a)
		if err != nil {
			return err
		}
		filter := models.SessionFilter{UserID: userID}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			filter.Status = models.Status(strings.ToLower(status))
			if !filter.Status.Valid() {
				return fmt.Errorf("invalid status '%s'. Use: active, paused, completed or interrupted", status)
			}
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		sessions, err := a.Store.ListSessions(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(out, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		printSessions(out, sessions, a.Config.Location())
		return nil
	}),
}

var approveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Approve a completed session for payroll",
	Long: `Approve a session so the next payroll import picks it up.
Use --revoke to withdraw an approval.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		revoke, _ := cmd.Flags().GetBool("revoke")
		session, err := a.Store.SetApproved(cmd.Context(), args[0], !revoke)
		if err != nil {
			return fmt.Errorf("approve session %s: %w", args[0], err)
		}
		if session.Approved {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Approved session %s\n", session.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked approval for session %s\n", session.ID)
		}
		return nil
	}),
}

var auditCmd = &cobra.Command{
	Use:   "audit [session-id]",
	Short: "Show the audit trail of a session",
	Long: `Show every recorded lifecycle event of a session, oldest first.
Without an id the user's current session is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		session, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		events, err := a.Store.ListAudit(cmd.Context(), session.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if events == nil {
				events = []models.AuditEvent{}
			}
			return writeJSON(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintf(out, "No audit events for session %s.\n", session.ID)
			return nil
		}
		loc := a.Config.Location()
		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []string{
				ev.Timestamp.In(loc).Format("2006-01-02 15:04:05"),
				ev.Type,
				ev.Transition,
				formatDetails(ev.Details),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"Time", "Event", "Transition", "Details"}, rows))
		return nil
	}),
}

func init() {
	auditCmd.Flags().Bool("json", false, "Output as JSON")

	sessionsCmd.Flags().String("status", "", "Filter by status: active|paused|completed|interrupted")
	sessionsCmd.Flags().Int("limit", 20, "Maximum number of sessions to show (0 for all)")
	sessionsCmd.Flags().Bool("json", false, "Output as JSON")

	approveCmd.Flags().Bool("revoke", false, "Withdraw approval instead")
}

func printSessions(out io.Writer, sessions []models.WorkSession, loc *time.Location) {
	rows := make([][]string, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		billable := "-"
		if s.Status == models.StatusCompleted {
			billable = parser.FormatMinutes(s.BillableDurationMinutes)
		}
		rows = append(rows, []string{
			s.ID,
			string(s.Status),
			s.StartedAt.In(loc).Format("2006-01-02 15:04"),
			billable,
			strconv.FormatBool(s.Approved),
			describeSession(s),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Status", "Started", "Billable", "Approved", "Activity"}, rows))
}

// renderTable draws rows with a plain border
func renderTable(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// formatDetails renders details as sorted key=value pairs
func formatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+details[k])
	}
	return strings.Join(pairs, " ")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
