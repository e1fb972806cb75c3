// Package audit delivers lifecycle and import events to append-only sinks.
//
// Recording is best-effort from the tracker's point of view: a sink error is
// logged by the caller and never undoes the state change it describes.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, ev models.AuditEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev models.AuditEvent) error

func (f SinkFunc) Record(ctx context.Context, ev models.AuditEvent) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, models.AuditEvent) error { return nil })

// Normalize fills in an id and timestamp when the caller left them empty.
func Normalize(ev models.AuditEvent) models.AuditEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// Multi fans an event out to every sink; all sinks are tried even if some fail.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev models.AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StoreSink appends events to the store's audit table.
type StoreSink struct {
	log store.AuditLog
}

func NewStoreSink(log store.AuditLog) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) Record(ctx context.Context, ev models.AuditEvent) error {
	return s.log.AppendAudit(ctx, Normalize(ev))
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, ev models.AuditEvent) error {
	attrs := []any{
		"type", ev.Type,
		"session_id", ev.SessionID,
		"user_id", ev.UserID,
		"transition", ev.Transition,
		"timestamp", ev.Timestamp,
	}
	for k, v := range ev.Details {
		attrs = append(attrs, k, v)
	}
	s.logger.InfoContext(ctx, "audit event", attrs...)
	return nil
}
