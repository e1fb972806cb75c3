package payroll

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/config"
	"github.com/balkashynov/worklog/internal/store"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Importer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[store.Store](i)
		sink := do.MustInvoke[audit.Sink](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return NewImporter(st, sink,
			WithLocation(cfg.Location()),
			WithLogger(logger),
		), nil
	})
}
