package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "Show comprehensive help for worklog",
	Long:  `Display detailed help for all worklog commands, or the help of one command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			showCustomHelp(cmd.OutOrStdout())
			return nil
		}
		target, _, err := cmd.Root().Find(args)
		if err != nil || target == cmd.Root() {
			return fmt.Errorf("unknown help topic %q", args)
		}
		return target.Help()
	},
}

func showCustomHelp(out io.Writer) {
	fmt.Fprint(out, `
██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗██╗      ██████╗  ██████╗
██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██║     ██╔═══██╗██╔════╝
██║ █╗ ██║██║   ██║██████╔╝█████╔╝ ██║     ██║   ██║██║  ███╗
██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██║     ██║   ██║██║   ██║
╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗╚██████╔╝╚██████╔╝
 ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝ ╚═════╝  ╚═════╝

worklog - Work Session Tracker + Payroll Import

SESSIONS:

  start [activity]        Start a work session (returns the running one if any)
    --module              Module the work belongs to
    --category            Category (default implementation)
    --priority            Priority: low|medium|high
    --project             Project reference
    --order               Order reference
    --task                Task reference, e.g. APP-123
    --no-ui               Skip the interactive timer

    Smart syntax:
      @project      Set project reference
      #category     Set category
      +priority     Set priority (low/medium/high)
      ABC-123       Link a task reference

    Example:
      worklog start "fix login redirect @apollo #review +high APP-123"

    Timer keys:
      p/space       Pause or resume
      s             Stop and bill
      i             Interrupt (asks for a reason)
      q/esc         Leave the timer, session keeps running

  pause [id]              Pause the running session
  resume [id]             Resume a paused session
  stop [id]               Stop and round up to the next 15 minutes
  heartbeat [id]          Mark the session as still alive
  interrupt [id]          Abandon a session without billing it
    --reason              Why it was abandoned
  status                  Show the current session

  sessions                List sessions (alias: ls)
    --status              Filter: active|paused|completed|interrupted
    --limit               Maximum rows (default 20)
    --json                JSON output
  approve <id>            Approve a completed session for payroll
    --revoke              Withdraw the approval
  audit [id]              Show the audit trail of a session
    --json                JSON output

PAYROLL:

  period add <label>      Create a payroll period
    --from, --to          Period dates (yyyy-mm-dd, dd/mm/yyyy, today, "3 days ago")
  period ls               List payroll periods
  import                  Import approved sessions into a period
    --period              Period id (required)
    --rate                Hourly rate (default from config)
    --from, --to          Narrow the session date range
  entries                 List entries of a period
    --period              Period id (required)

  timesheet               Weekly billable hours per activity
    --week                Any date inside the week

ADMIN:

  reap                    Interrupt sessions without recent heartbeats
    --idle                Idle time (default from config)
  serve                   Run the HTTP API and the background reaper
    --addr                Listen address (default from config)
  version                 Print version information
  help [command]          Show this help or the help of one command

GLOBAL FLAGS:

  --config                Config file (default ~/.config/worklog/config.toml)
  -u, --user              User to act as (default from config or $WORKLOG_USER)

`)
}
