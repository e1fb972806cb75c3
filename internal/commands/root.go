package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/worklog/internal/app"
	"github.com/balkashynov/worklog/internal/config"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errNoSession means the user has nothing running or paused
var errNoSession = errors.New("no running session")

var (
	configPath string
	userFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "worklog",
	Short: "A CLI work session tracker with payroll import",
	Long: `worklog tracks work sessions (start, pause, resume, stop), rounds them
to billable quarter hours and imports approved sessions into payroll periods.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "worklog %s (commit %s, built %s)\n", version, commit, date)
	},
}

type appFunc func(cmd *cobra.Command, args []string, a *app.App) error

// withApp loads the config and opens the store before running fn.
// CLI commands only log warnings; the JSON log goes to stderr.
func withApp(fn appFunc) func(*cobra.Command, []string) error {
	return withAppLevel(slog.LevelWarn, fn)
}

func withAppLevel(level slog.Level, fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := app.NewLogger(cfg, cmd.ErrOrStderr(), level)
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// currentUser picks --user, then the configured default, then the OS user
func currentUser(a *app.App) (string, error) {
	if u := strings.TrimSpace(userFlag); u != "" {
		return u, nil
	}
	if a.Config.DefaultUser != "" {
		return a.Config.DefaultUser, nil
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	return "", errors.New("no user: pass --user or set WORKLOG_USER")
}

// resolveSession returns the session named by args, or the user's current one
func resolveSession(ctx context.Context, a *app.App, args []string) (*models.WorkSession, error) {
	if len(args) > 0 {
		return a.Tracker.Get(ctx, args[0])
	}
	userID, err := currentUser(a)
	if err != nil {
		return nil, err
	}
	s, err := a.Tracker.Current(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", errNoSession, userID)
	}
	return s, err
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/worklog/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user to act as (default from config or $WORKLOG_USER)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(interruptCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(periodCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(timesheetCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.SetHelpCommand(helpCmd)
}
