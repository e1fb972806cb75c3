package db

import (
	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return Open(cfg.Database.Path)
	})
}
