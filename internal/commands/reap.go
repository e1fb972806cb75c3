package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/app"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Interrupt active sessions that stopped sending heartbeats",
	Long: `Interrupt every active session whose last heartbeat is older than --idle.
Reaped sessions are never billed.

Example:
  worklog reap --idle 45m`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		idle := a.Config.StaleAfter()
		if cmd.Flags().Changed("idle") {
			idle, _ = cmd.Flags().GetDuration("idle")
		}
		reaped, err := a.Tracker.ReapStale(cmd.Context(), idle)
		out := cmd.OutOrStdout()
		for _, s := range reaped {
			fmt.Fprintf(out, "Interrupted stale session %s (user %s)\n", s.ID, s.UserID)
		}
		if len(reaped) == 0 && err == nil {
			fmt.Fprintln(out, "No stale sessions.")
		}
		return err
	}),
}

func init() {
	reapCmd.Flags().Duration("idle", 0, "Idle time before a session is stale (default from config)")
}
