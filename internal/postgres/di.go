package postgres

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/config"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*PostgresStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()
		return Connect(ctx, cfg.Database.URL)
	})
}
