// Package tracker owns the work-session state machine.
//
//	Start ──► active ──Pause──► paused
//	            ▲  │              │
//	            └──┼───Resume─────┘
//	               │Stop/Interrupt   (also from paused)
//	               ▼
//	      completed | interrupted   (terminal)
//
// All coordination is delegated to the store: the manager holds no locks and
// keeps no session state of its own.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/rounding"
	"github.com/balkashynov/worklog/internal/store"
)

// Manager drives session transitions against a store.
type Manager struct {
	store  store.SessionStore
	audit  audit.Sink
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger used for best-effort audit failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// New builds a Manager. A nil sink discards audit events.
func New(st store.SessionStore, sink audit.Sink, opts ...Option) *Manager {
	if sink == nil {
		sink = audit.Discard
	}
	m := &Manager{
		store:  st,
		audit:  sink,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

// Start returns the user's active session, creating one if none exists.
func (m *Manager) Start(ctx context.Context, userID string, attrs models.Attributes) (*models.WorkSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	existing, err := m.store.FindActiveByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find active session: %w", err)
	}

	candidate := models.NewWorkSession(m.newID(), userID, attrs, m.clock())
	session, created, err := m.store.CreateIfNoneActive(ctx, candidate)
	if errors.Is(err, store.ErrActiveExists) {
		// Lost the race; whoever won owns the active session now
		winner, rerr := m.store.FindActiveByUser(ctx, userID)
		if rerr == nil {
			return winner, nil
		}
		return nil, fmt.Errorf("%w: start for user %s: %w", ErrConflict, userID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		return session, nil
	}

	m.record(ctx, models.AuditEvent{
		Type:       models.EventSessionStarted,
		SessionID:  session.ID,
		UserID:     session.UserID,
		Transition: models.TransitionLabel("", models.StatusActive),
		Timestamp:  session.StartedAt,
	})
	return session, nil
}

// Pause moves an active session to paused.
func (m *Manager) Pause(ctx context.Context, id string) (*models.WorkSession, error) {
	return m.transition(ctx, id, models.StatusActive, models.StatusPaused, models.EventSessionPaused)
}

// Resume moves a paused session back to active.
func (m *Manager) Resume(ctx context.Context, id string) (*models.WorkSession, error) {
	return m.transition(ctx, id, models.StatusPaused, models.StatusActive, models.EventSessionResumed)
}

// Heartbeat bumps an active session's updated_at.
func (m *Manager) Heartbeat(ctx context.Context, id string) error {
	_, err := m.transition(ctx, id, models.StatusActive, models.StatusActive, models.EventSessionHeartbeat)
	return err
}

// transition performs a single-source transition such as pause or resume.
func (m *Manager) transition(ctx context.Context, id string, from, to models.Status, eventType string) (*models.WorkSession, error) {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: cannot %s a %s session", ErrInvalidTransition, verb(eventType), current.Status)
	}

	updated, err := m.store.UpdateStatus(ctx, id, from, to, models.SessionUpdate{UpdatedAt: m.clock()})
	switch {
	case errors.Is(err, store.ErrStatusMismatch):
		reread, rerr := m.store.GetByID(ctx, id)
		if rerr != nil {
			return nil, fmt.Errorf("reread session %s: %w", id, rerr)
		}
		if reread.Status != from {
			return nil, fmt.Errorf("%w: cannot %s a %s session", ErrInvalidTransition, verb(eventType), reread.Status)
		}
		return nil, fmt.Errorf("%w: session %s: %w", ErrConflict, id, err)
	case errors.Is(err, store.ErrActiveExists):
		return nil, fmt.Errorf("%w: user %s already has an active session: %w", ErrConflict, current.UserID, err)
	case err != nil:
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	m.record(ctx, models.AuditEvent{
		Type:       eventType,
		SessionID:  updated.ID,
		UserID:     updated.UserID,
		Transition: models.TransitionLabel(from, to),
		Timestamp:  updated.UpdatedAt,
	})
	return updated, nil
}

// Stop completes a session and fixes its raw and billable durations.
// Stopping a terminal session returns it unchanged.
func (m *Manager) Stop(ctx context.Context, id string) (*models.WorkSession, error) {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	now := m.clock()
	raw := rounding.Minutes(now.Sub(current.StartedAt))
	billable := rounding.Round(raw)
	fields := models.SessionUpdate{
		UpdatedAt:               now,
		EndedAt:                 &now,
		RawDurationMinutes:      &raw,
		BillableDurationMinutes: &billable,
	}

	updated, from, changed, err := m.finish(ctx, current, models.StatusCompleted, fields)
	if err != nil || !changed {
		return updated, err
	}

	m.record(ctx, models.AuditEvent{
		Type:       models.EventSessionStopped,
		SessionID:  updated.ID,
		UserID:     updated.UserID,
		Transition: models.TransitionLabel(from, models.StatusCompleted),
		Timestamp:  now,
		Details: map[string]string{
			"raw_minutes":      strconv.Itoa(updated.RawDurationMinutes),
			"billable_minutes": strconv.Itoa(updated.BillableDurationMinutes),
		},
	})
	return updated, nil
}

// Interrupt forces a non-terminal session into interrupted, recording why.
// Interrupting a terminal session returns it unchanged.
func (m *Manager) Interrupt(ctx context.Context, id, reason string) (*models.WorkSession, error) {
	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	now := m.clock()
	fields := models.SessionUpdate{UpdatedAt: now, InterruptReason: &reason}
	updated, from, changed, err := m.finish(ctx, current, models.StatusInterrupted, fields)
	if err != nil || !changed {
		return updated, err
	}

	m.record(ctx, models.AuditEvent{
		Type:       models.EventSessionInterrupted,
		SessionID:  updated.ID,
		UserID:     updated.UserID,
		Transition: models.TransitionLabel(from, models.StatusInterrupted),
		Timestamp:  now,
		Details:    map[string]string{"reason": reason},
	})
	return updated, nil
}

// finish moves current into a terminal status and reports the status it
// left. changed is false when a concurrent caller already terminated the
// session; the stored row is returned in that case. If the session only moved
// between active and paused, the swap is retried once from the new status.
func (m *Manager) finish(ctx context.Context, current *models.WorkSession, target models.Status, fields models.SessionUpdate) (*models.WorkSession, models.Status, bool, error) {
	from := current.Status
	for attempt := 0; ; attempt++ {
		updated, err := m.store.UpdateStatus(ctx, current.ID, from, target, fields)
		if err == nil {
			return updated, from, true, nil
		}
		if !errors.Is(err, store.ErrStatusMismatch) {
			return nil, from, false, fmt.Errorf("update session %s: %w", current.ID, err)
		}

		reread, rerr := m.store.GetByID(ctx, current.ID)
		if rerr != nil {
			return nil, from, false, fmt.Errorf("reread session %s: %w", current.ID, rerr)
		}
		if reread.Status.Terminal() {
			return reread, reread.Status, false, nil
		}
		if attempt > 0 {
			return nil, from, false, fmt.Errorf("%w: session %s moved to %s: %w", ErrConflict, current.ID, reread.Status, err)
		}
		from = reread.Status
	}
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.WorkSession, error) {
	s, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// Current returns the user's active session, or failing that their most
// recently touched paused one.
func (m *Manager) Current(ctx context.Context, userID string) (*models.WorkSession, error) {
	active, err := m.store.FindActiveByUser(ctx, userID)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find active session: %w", err)
	}

	paused, err := m.store.ListSessions(ctx, models.SessionFilter{UserID: userID, Status: models.StatusPaused})
	if err != nil {
		return nil, fmt.Errorf("list paused sessions: %w", err)
	}
	if len(paused) == 0 {
		return nil, fmt.Errorf("no current session for %s: %w", userID, ErrNotFound)
	}
	latest := paused[0]
	for _, s := range paused[1:] {
		if s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	return &latest, nil
}

// ReapStale interrupts active sessions whose last heartbeat is older than idle.
// It returns the sessions it interrupted; a failure on one session does not
// stop the sweep.
func (m *Manager) ReapStale(ctx context.Context, idle time.Duration) ([]*models.WorkSession, error) {
	if idle <= 0 {
		return nil, fmt.Errorf("%w: idle must be positive", ErrInvalidRequest)
	}
	stale, err := m.store.FindStaleActive(ctx, m.clock().Add(-idle))
	if err != nil {
		return nil, fmt.Errorf("find stale sessions: %w", err)
	}

	reason := "no heartbeat for " + idle.String()
	var (
		reaped []*models.WorkSession
		errs   []error
	)
	for _, s := range stale {
		updated, err := m.Interrupt(ctx, s.ID, reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if updated.Status == models.StatusInterrupted {
			reaped = append(reaped, updated)
		}
	}
	if len(reaped) > 0 {
		m.logger.Info("reaped stale sessions", "count", len(reaped), "idle", idle.String())
	}
	return reaped, errors.Join(errs...)
}

// record forwards an event to the audit sink. Failures are logged, never
// returned: the state change has already committed.
func (m *Manager) record(ctx context.Context, ev models.AuditEvent) {
	if err := m.audit.Record(ctx, ev); err != nil {
		m.logger.Warn("audit record failed",
			"event", ev.Type,
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}

func verb(eventType string) string {
	switch eventType {
	case models.EventSessionPaused:
		return "pause"
	case models.EventSessionResumed:
		return "resume"
	case models.EventSessionHeartbeat:
		return "heartbeat"
	default:
		return eventType
	}
}
