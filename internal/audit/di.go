package audit

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/balkashynov/worklog/internal/config"
	"github.com/balkashynov/worklog/internal/store"
)

// RegisterDI provides the composite Sink: the store's audit table and the
// logger always, plus the webhooks that are configured.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Sink, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[store.Store](i)
		logger := do.MustInvoke[*slog.Logger](i)

		sinks := Multi{NewStoreSink(st), NewLogSink(logger)}
		if cfg.Audit.WebhookURL != "" {
			sinks = append(sinks, NewWebhookSink(cfg.Audit.WebhookURL))
		}
		if cfg.Audit.DiscordWebhookURL != "" {
			ds, err := NewDiscordSink(cfg.Audit.DiscordWebhookURL)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, ds)
		}
		return sinks, nil
	})
}
