// Package app builds the dependency graph shared by the CLI and the HTTP server.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/config"
	"github.com/balkashynov/worklog/internal/db"
	"github.com/balkashynov/worklog/internal/payroll"
	"github.com/balkashynov/worklog/internal/postgres"
	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/tracker"
)

// App holds the resolved services.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Tracker  *tracker.Manager
	Importer *payroll.Importer
}

// NewLogger returns a JSON logger writing to w. Development mode always logs
// at debug level; otherwise level applies.
func NewLogger(cfg *config.Config, w io.Writer, level slog.Level) *slog.Logger {
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func setupDI(cfg *config.Config, logger *slog.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	db.RegisterDI(injector)
	postgres.RegisterDI(injector)
	do.Provide(injector, func(i do.Injector) (store.Store, error) {
		if cfg.Database.Driver == config.DriverPostgres {
			pg, err := do.Invoke[*postgres.PostgresStore](i)
			if err != nil {
				return nil, err
			}
			return pg, nil
		}
		sq, err := do.Invoke[*db.Store](i)
		if err != nil {
			return nil, err
		}
		return sq, nil
	})
	audit.RegisterDI(injector)
	tracker.RegisterDI(injector)
	payroll.RegisterDI(injector)

	return injector
}

// New opens the configured store and wires the tracker and importer to it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	injector := setupDI(cfg, logger)

	st, err := do.Invoke[store.Store](injector)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := do.Invoke[audit.Sink](injector); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build audit sink: %w", err)
	}
	manager, err := do.Invoke[*tracker.Manager](injector)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("resolve session manager: %w", err)
	}
	importer, err := do.Invoke[*payroll.Importer](injector)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("resolve payroll importer: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Tracker:  manager,
		Importer: importer,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
