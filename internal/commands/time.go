package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/balkashynov/worklog/internal/app"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/parser"
	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/tui"
)

var startCmd = &cobra.Command{
	Use:   "start [activity]",
	Short: "Start a work session",
	Long: `Start a work session. Opens the interactive timer by default, use --no-ui for a plain start.
If a session is already running it is returned instead of starting a second one.

Smart syntax inside the activity:
  @project      Set project reference
  #category     Set category (default implementation)
  +priority     Set priority (low/medium/high)
  ABC-123       Link a task reference

Examples:
  worklog start "fix login redirect @apollo #review +high APP-123"
  worklog start --no-ui --module billing "invoice export"`,
	RunE: withApp(runStart),
}

func runStart(cmd *cobra.Command, args []string, a *app.App) error {
	ctx := cmd.Context()
	userID, err := currentUser(a)
	if err != nil {
		return err
	}
	attrs, err := startAttributes(cmd, args)
	if err != nil {
		return err
	}

	var existingID string
	if existing, err := a.Store.FindActiveByUser(ctx, userID); err == nil {
		existingID = existing.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	session, err := a.Tracker.Start(ctx, userID, attrs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if session.ID == existingID {
		fmt.Fprintf(out, "Already tracking session %s: %s\n", session.ID, describeSession(session))
	} else {
		fmt.Fprintf(out, "⏱️  Started session %s: %s\n", session.ID, describeSession(session))
	}
	fmt.Fprintf(out, "Started at: %s\n", session.StartedAt.In(a.Config.Location()).Format("15:04:05"))

	noUI, _ := cmd.Flags().GetBool("no-ui")
	if noUI || !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	final, err := tui.RunTimer(session, a.Tracker)
	if err != nil {
		return err
	}
	if final.Err() != nil {
		return final.Err()
	}
	if final.Finished() {
		printFinished(out, final.Session())
		return nil
	}
	fmt.Fprintln(out, "Timer closed, session keeps running. Use 'worklog status' to check on it.")
	return nil
}

// startAttributes merges the inline activity syntax with explicit flags.
// Flags win over inline markers.
func startAttributes(cmd *cobra.Command, args []string) (models.Attributes, error) {
	parsed := parser.ParseActivity(strings.Join(args, " "))
	if len(parsed.Errors) > 0 {
		return models.Attributes{}, errors.New(strings.Join(parsed.Errors, "; "))
	}
	attrs := models.Attributes{
		Activity:   parsed.Activity,
		Category:   parsed.Category,
		Priority:   parsed.Priority,
		ProjectRef: parsed.Project,
		TaskRef:    parsed.TaskRef,
	}

	flags := cmd.Flags()
	if flags.Changed("module") {
		attrs.Module, _ = flags.GetString("module")
	}
	if flags.Changed("category") {
		category, _ := flags.GetString("category")
		attrs.Category = strings.ToLower(strings.TrimSpace(category))
	}
	if flags.Changed("priority") {
		priority, _ := flags.GetString("priority")
		priority = strings.ToLower(strings.TrimSpace(priority))
		if !parser.IsValidPriority(priority) {
			return models.Attributes{}, fmt.Errorf("invalid priority '%s'. Use: low, medium, high, 1, 2, or 3", priority)
		}
		attrs.Priority = parser.NormalizePriority(priority)
	}
	if flags.Changed("project") {
		attrs.ProjectRef, _ = flags.GetString("project")
	}
	if flags.Changed("order") {
		attrs.OrderRef, _ = flags.GetString("order")
	}
	if flags.Changed("task") {
		ref, _ := flags.GetString("task")
		normalized, err := parser.NormalizeTaskRef(ref)
		if err != nil {
			return models.Attributes{}, err
		}
		attrs.TaskRef = normalized
	}
	return attrs, nil
}

var pauseCmd = &cobra.Command{
	Use:   "pause [session-id]",
	Short: "Pause the running session",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		current, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		session, err := a.Tracker.Pause(cmd.Context(), current.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "⏸️  Paused session %s\n", session.ID)
		return nil
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a paused session",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		current, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		session, err := a.Tracker.Resume(cmd.Context(), current.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "▶️  Resumed session %s\n", session.ID)
		return nil
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop [session-id]",
	Short: "Stop a session and record its billable time",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		current, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		session, err := a.Tracker.Stop(cmd.Context(), current.ID)
		if err != nil {
			return err
		}
		printFinished(cmd.OutOrStdout(), session)
		return nil
	}),
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat [session-id]",
	Short: "Mark the running session as still alive",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		current, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		if err := a.Tracker.Heartbeat(cmd.Context(), current.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat recorded for session %s\n", current.ID)
		return nil
	}),
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt [session-id]",
	Short: "Abandon a session without billing it",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		current, err := resolveSession(cmd.Context(), a, args)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		session, err := a.Tracker.Interrupt(cmd.Context(), current.ID, reason)
		if err != nil {
			return err
		}
		printFinished(cmd.OutOrStdout(), session)
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		out := cmd.OutOrStdout()
		session, err := resolveSession(cmd.Context(), a, nil)
		if err != nil {
			if errors.Is(err, errNoSession) {
				fmt.Fprintln(out, "No running session")
				return nil
			}
			return err
		}

		loc := a.Config.Location()
		fmt.Fprintf(out, "Session %s (%s)\n", session.ID, session.Status)
		fmt.Fprintf(out, "Activity: %s\n", describeSession(session))
		fmt.Fprintf(out, "Started at: %s\n", session.StartedAt.In(loc).Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Elapsed time: %s\n", formatDuration(time.Since(session.StartedAt)))
		return nil
	}),
}

func init() {
	startCmd.Flags().Bool("no-ui", false, "Start without the interactive timer")
	startCmd.Flags().String("module", "", "Module the work belongs to")
	startCmd.Flags().String("category", "", "Category (default implementation)")
	startCmd.Flags().String("priority", "", "Priority: low|medium|high")
	startCmd.Flags().String("project", "", "Project reference")
	startCmd.Flags().String("order", "", "Order reference")
	startCmd.Flags().String("task", "", "Task reference, e.g. APP-123")

	interruptCmd.Flags().String("reason", "", "Why the session was abandoned")
}

func printFinished(out io.Writer, s *models.WorkSession) {
	switch s.Status {
	case models.StatusCompleted:
		fmt.Fprintf(out, "⏹️  Stopped session %s: %s\n", s.ID, describeSession(s))
		fmt.Fprintf(out, "Duration: %s, billable: %s\n",
			parser.FormatMinutes(s.RawDurationMinutes), parser.FormatMinutes(s.BillableDurationMinutes))
	case models.StatusInterrupted:
		fmt.Fprintf(out, "Interrupted session %s: %s\n", s.ID, describeSession(s))
		if s.InterruptReason != "" {
			fmt.Fprintf(out, "Reason: %s\n", s.InterruptReason)
		}
	default:
		fmt.Fprintf(out, "Session %s is %s\n", s.ID, s.Status)
	}
}

// describeSession renders activity plus its references on one line
func describeSession(s *models.WorkSession) string {
	parts := []string{}
	if s.Activity != "" {
		parts = append(parts, s.Activity)
	} else {
		parts = append(parts, "(no activity)")
	}
	if s.TaskRef != "" {
		parts = append(parts, s.TaskRef)
	}
	if s.ProjectRef != "" {
		parts = append(parts, "@"+s.ProjectRef)
	}
	parts = append(parts, "#"+s.Category)
	return strings.Join(parts, " ")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	} else if d.Minutes() >= 1 {
		return fmt.Sprintf("%.0fm", d.Minutes())
	} else {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
}
