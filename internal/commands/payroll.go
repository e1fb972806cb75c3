package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/app"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/parser"
	"github.com/balkashynov/worklog/internal/payroll"
)

var periodCmd = &cobra.Command{
	Use:   "period",
	Short: "Manage payroll periods",
}

var periodAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Create a payroll period",
	Long: `Create a payroll period that imported sessions are billed into.

Dates accept yyyy-mm-dd, dd/mm/yyyy, today, yesterday or "N days ago".

Example:
  worklog period add "March 2025" --from 2025-03-01 --to 2025-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		label := strings.TrimSpace(args[0])
		if label == "" {
			return errors.New("period label must not be empty")
		}
		from, err := dateFlag(cmd, a, "from")
		if err != nil {
			return err
		}
		to, err := dateFlag(cmd, a, "to")
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return errors.New("both --from and --to are required")
		}
		if to.Before(*from) {
			return errors.New("--to must not be before --from")
		}

		period := &models.PayrollPeriod{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Label:     label,
			StartsOn:  calendarDate(*from),
			EndsOn:    calendarDate(*to),
		}
		if err := a.Store.CreatePeriod(cmd.Context(), period); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created period %s: %s (%s to %s)\n",
			period.ID, period.Label, period.StartsOn.Format("2006-01-02"), period.EndsOn.Format("2006-01-02"))
		return nil
	}),
}

var periodListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List payroll periods",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		periods, err := a.Store.ListPeriods(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(out, periods)
		}
		if len(periods) == 0 {
			fmt.Fprintln(out, "No payroll periods.")
			return nil
		}
		rows := make([][]string, 0, len(periods))
		for _, p := range periods {
			rows = append(rows, []string{p.ID, p.Label, p.StartsOn.Format("2006-01-02"), p.EndsOn.Format("2006-01-02")})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Label", "From", "To"}, rows))
		return nil
	}),
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import approved sessions into a payroll period",
	Long: `Import completed, approved sessions into a payroll period.
Re-running an import never bills a session twice.

Without --from/--to the period's own dates are used.

Example:
  worklog import --period <period-id> --rate 60`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ctx := cmd.Context()
		userID, err := currentUser(a)
		if err != nil {
			return err
		}
		periodID, _ := cmd.Flags().GetString("period")
		period, err := a.Store.GetPeriod(ctx, periodID)
		if err != nil {
			return fmt.Errorf("payroll period %q: %w", periodID, err)
		}

		req := payroll.Request{PeriodID: period.ID, UserID: userID, HourlyRate: a.Config.Payroll.DefaultHourlyRate}
		if cmd.Flags().Changed("rate") {
			req.HourlyRate, _ = cmd.Flags().GetFloat64("rate")
		}
		if req.From, err = dateFlag(cmd, a, "from"); err != nil {
			return err
		}
		if req.To, err = dateFlag(cmd, a, "to"); err != nil {
			return err
		}
		if req.From == nil {
			from := period.StartsOn
			req.From = &from
		}
		if req.To == nil {
			to := period.EndsOn
			req.To = &to
		}

		result, err := a.Importer.Import(ctx, req)
		if result != nil {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if jerr := writeJSON(cmd.OutOrStdout(), result); jerr != nil {
					return jerr
				}
			} else {
				printImport(cmd.OutOrStdout(), period, result)
			}
		}
		return err
	}),
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List payroll entries of a period",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		periodID, _ := cmd.Flags().GetString("period")
		entries, err := a.Store.ListPayrollEntries(cmd.Context(), models.EntryFilter{
			PeriodID: periodID,
			UserID:   strings.TrimSpace(userFlag),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No payroll entries.")
			return nil
		}
		var hours, amount float64
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.WorkDate.Format("2006-01-02"),
				e.UserID,
				fmt.Sprintf("%.2f", e.HoursWorked),
				fmt.Sprintf("%.2f", e.HourlyRate),
				fmt.Sprintf("%.2f", e.Amount),
				e.Description,
			})
			hours += e.HoursWorked
			amount += e.Amount
		}
		fmt.Fprintln(out, renderTable([]string{"Date", "User", "Hours", "Rate", "Amount", "Description"}, rows))
		fmt.Fprintf(out, "Total: %.2f hours, %.2f\n", hours, amount)
		return nil
	}),
}

func init() {
	periodAddCmd.Flags().String("from", "", "First day of the period")
	periodAddCmd.Flags().String("to", "", "Last day of the period")
	periodListCmd.Flags().Bool("json", false, "Output as JSON")
	periodCmd.AddCommand(periodAddCmd)
	periodCmd.AddCommand(periodListCmd)

	importCmd.Flags().String("period", "", "Payroll period id")
	importCmd.Flags().Float64("rate", 0, "Hourly rate (default from config)")
	importCmd.Flags().String("from", "", "Only sessions started on or after this date")
	importCmd.Flags().String("to", "", "Only sessions started on or before this date")
	importCmd.Flags().Bool("json", false, "Output as JSON")
	_ = importCmd.MarkFlagRequired("period")

	entriesCmd.Flags().String("period", "", "Payroll period id")
	entriesCmd.Flags().Bool("json", false, "Output as JSON")
	_ = entriesCmd.MarkFlagRequired("period")
}

// dateFlag parses a date flag in the configured time zone; unset gives nil
func dateFlag(cmd *cobra.Command, a *app.App, name string) (*time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	loc := a.Config.Location()
	t, err := parser.ParseDate(value, time.Now().In(loc), loc)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

// calendarDate keeps only the date, pinned to UTC midnight
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func printImport(out io.Writer, period *models.PayrollPeriod, result *payroll.Result) {
	fmt.Fprintf(out, "Imported %d session(s) into %s\n", result.ImportedCount, period.Label)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped %d already imported session(s)\n", len(result.Skipped))
	}
	for _, f := range result.Failures {
		fmt.Fprintf(out, "Failed %s: %s\n", f.SessionID, f.Reason)
	}
}
