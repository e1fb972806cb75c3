package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/balkashynov/worklog/internal/api"
	"github.com/balkashynov/worklog/internal/app"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the stale session reaper",
	Long: `Serve the session and payroll HTTP API. A background reaper interrupts
active sessions that stopped sending heartbeats.

Example:
  worklog serve --addr 0.0.0.0:8080`,
	Args: cobra.NoArgs,
	RunE: withAppLevel(slog.LevelInfo, runServe),
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string, a *app.App) error {
	addr := a.Config.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}
	if !a.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(&api.Controller{
			Tracker:  a.Tracker,
			Importer: a.Importer,
			Store:    a.Store,
			Logger:   a.Logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		reap(ctx, a)
		return nil
	})
	return g.Wait()
}

// reap interrupts stale sessions every reap interval until ctx ends
func reap(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(a.Config.ReapInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Tracker.ReapStale(ctx, a.Config.StaleAfter()); err != nil {
				a.Logger.Error("stale session sweep failed", "error", err)
			}
		}
	}
}
