package tracker

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/store"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		st := do.MustInvoke[store.Store](i)
		sink := do.MustInvoke[audit.Sink](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return New(st, sink, WithLogger(logger)), nil
	})
}
