package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, ev models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) ofType(eventType string) []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range s.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store   *store.Memory
	sink    *recordingSink
	clock   *fakeClock
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		sink:  &recordingSink{},
		clock: newFakeClock(),
	}
	var seq int
	var mu sync.Mutex
	f.manager = New(f.store, f.sink,
		WithClock(f.clock.Now),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("session-%d", seq)
		}),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
	return f
}

func (f *fixture) start(t *testing.T, userID string) *models.WorkSession {
	t.Helper()
	s, err := f.manager.Start(context.Background(), userID, models.Attributes{Activity: "coding"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestStartTwiceReturnsSameSession(t *testing.T) {
	f := newFixture(t)
	first := f.start(t, "user-1")
	second := f.start(t, "user-1")

	if first.ID != second.ID {
		t.Fatalf("expected same session, got %s and %s", first.ID, second.ID)
	}
	if n := len(f.sink.ofType(models.EventSessionStarted)); n != 1 {
		t.Fatalf("expected 1 started event, got %d", n)
	}
}

func TestStartDefaults(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, "user-1")

	if s.Status != models.StatusActive {
		t.Fatalf("status = %s", s.Status)
	}
	if s.Category != models.DefaultCategory || s.Priority != models.DefaultPriority {
		t.Fatalf("defaults not applied: %s/%s", s.Category, s.Priority)
	}
	if !s.StartedAt.Equal(f.clock.Now()) {
		t.Fatalf("started at %v, want %v", s.StartedAt, f.clock.Now())
	}
	ev := f.sink.ofType(models.EventSessionStarted)[0]
	if ev.Transition != "active" || ev.SessionID != s.ID || ev.UserID != "user-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStartRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Start(context.Background(), "", models.Attributes{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestConcurrentStartSingleActive(t *testing.T) {
	f := newFixture(t)
	const n = 32

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.manager.Start(context.Background(), "user-1", models.Attributes{})
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			ids[i] = s.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected every caller to get %s, got %s", ids[0], id)
		}
	}
	active, err := f.store.ListSessions(context.Background(), models.SessionFilter{UserID: "user-1", Status: models.StatusActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
}

// racingStore reports ErrActiveExists from CreateIfNoneActive the way the SQL
// adapters do when the unique index rejects a concurrent insert.
type racingStore struct {
	*store.Memory
	winner *models.WorkSession
}

func (r *racingStore) CreateIfNoneActive(ctx context.Context, s *models.WorkSession) (*models.WorkSession, bool, error) {
	if r.winner != nil {
		if _, _, err := r.Memory.CreateIfNoneActive(ctx, r.winner); err != nil {
			return nil, false, err
		}
	}
	return nil, false, store.ErrActiveExists
}

func TestStartLosingRaceReturnsWinner(t *testing.T) {
	clock := newFakeClock()
	winner := models.NewWorkSession("winner", "user-1", models.Attributes{}, clock.Now())
	st := &racingStore{Memory: store.NewMemory(), winner: winner}
	m := New(st, nil, WithClock(clock.Now))

	s, err := m.Start(context.Background(), "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ID != "winner" {
		t.Fatalf("expected winner session, got %s", s.ID)
	}
}

func TestStartLosingRaceWithoutWinnerIsConflict(t *testing.T) {
	st := &racingStore{Memory: store.NewMemory()}
	m := New(st, nil)

	_, err := m.Start(context.Background(), "user-1", models.Attributes{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !errors.Is(err, store.ErrActiveExists) {
		t.Fatalf("expected wrapped ErrActiveExists, got %v", err)
	}
}

func TestStopRoundsUpToQuarterHour(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		raw      int
		billable int
	}{
		{elapsed: 7 * time.Minute, raw: 7, billable: 15},
		{elapsed: 16 * time.Minute, raw: 16, billable: 30},
		{elapsed: 15 * time.Minute, raw: 15, billable: 15},
		{elapsed: 20 * time.Second, raw: 0, billable: 0},
		{elapsed: 44*time.Minute + 31*time.Second, raw: 45, billable: 45},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			f := newFixture(t)
			s := f.start(t, "user-1")
			f.clock.Advance(tt.elapsed)

			stopped, err := f.manager.Stop(context.Background(), s.ID)
			if err != nil {
				t.Fatalf("stop: %v", err)
			}
			if stopped.Status != models.StatusCompleted {
				t.Fatalf("status = %s", stopped.Status)
			}
			if stopped.RawDurationMinutes != tt.raw {
				t.Fatalf("raw = %d, want %d", stopped.RawDurationMinutes, tt.raw)
			}
			if stopped.BillableDurationMinutes != tt.billable {
				t.Fatalf("billable = %d, want %d", stopped.BillableDurationMinutes, tt.billable)
			}
			if stopped.EndedAt == nil || !stopped.EndedAt.Equal(f.clock.Now()) {
				t.Fatalf("ended at = %v", stopped.EndedAt)
			}
		})
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, "user-1")
	f.clock.Advance(16 * time.Minute)

	first, err := f.manager.Stop(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.manager.Stop(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if first.BillableDurationMinutes != second.BillableDurationMinutes {
		t.Fatalf("billable changed: %d then %d", first.BillableDurationMinutes, second.BillableDurationMinutes)
	}
	if !first.EndedAt.Equal(*second.EndedAt) {
		t.Fatalf("ended at changed: %v then %v", first.EndedAt, second.EndedAt)
	}
	events := f.sink.ofType(models.EventSessionStopped)
	if len(events) != 1 {
		t.Fatalf("expected 1 stopped event, got %d", len(events))
	}
	if events[0].Details["billable_minutes"] != "30" {
		t.Fatalf("details = %v", events[0].Details)
	}
}

func TestStopFromPaused(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, "user-1")
	f.clock.Advance(10 * time.Minute)
	if _, err := f.manager.Pause(context.Background(), s.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	stopped, err := f.manager.Stop(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	// pause time is not subtracted
	if stopped.RawDurationMinutes != 20 || stopped.BillableDurationMinutes != 30 {
		t.Fatalf("raw=%d billable=%d", stopped.RawDurationMinutes, stopped.BillableDurationMinutes)
	}
	ev := f.sink.ofType(models.EventSessionStopped)[0]
	if ev.Transition != "paused->completed" {
		t.Fatalf("transition = %q", ev.Transition)
	}
}

func TestPauseCompletedIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, "user-1")
	if _, err := f.manager.Stop(context.Background(), s.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	_, err := f.manager.Pause(context.Background(), s.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		setup   func(f *fixture, id string)
		op      func(m *Manager, id string) error
		wantErr error
	}{
		{
			name:  "resume active",
			setup: func(*fixture, string) {},
			op: func(m *Manager, id string) error {
				_, err := m.Resume(ctx, id)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "pause paused",
			setup: func(f *fixture, id string) {
				_, _ = f.manager.Pause(ctx, id)
			},
			op: func(m *Manager, id string) error {
				_, err := m.Pause(ctx, id)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "heartbeat paused",
			setup: func(f *fixture, id string) {
				_, _ = f.manager.Pause(ctx, id)
			},
			op: func(m *Manager, id string) error {
				return m.Heartbeat(ctx, id)
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "resume interrupted",
			setup: func(f *fixture, id string) {
				_, _ = f.manager.Interrupt(ctx, id, "crash")
			},
			op: func(m *Manager, id string) error {
				_, err := m.Resume(ctx, id)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name:  "pause unknown",
			setup: func(*fixture, string) {},
			op: func(m *Manager, _ string) error {
				_, err := m.Pause(ctx, "missing")
				return err
			},
			wantErr: ErrNotFound,
		},
		{
			name:  "stop unknown",
			setup: func(*fixture, string) {},
			op: func(m *Manager, _ string) error {
				_, err := m.Stop(ctx, "missing")
				return err
			},
			wantErr: ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := f.start(t, "user-1")
			tt.setup(f, s.ID)
			if err := tt.op(f.manager, s.ID); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPauseResumeCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, "user-1")

	paused, err := f.manager.Pause(ctx, s.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != models.StatusPaused {
		t.Fatalf("status = %s", paused.Status)
	}
	// a paused session is not active, so Start creates a new one
	other := f.start(t, "user-1")
	if other.ID == s.ID {
		t.Fatal("expected a new session while the first is paused")
	}

	_, err = f.manager.Resume(ctx, s.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict resuming beside another active session, got %v", err)
	}

	if _, err := f.manager.Stop(ctx, other.ID); err != nil {
		t.Fatalf("stop other: %v", err)
	}
	resumed, err := f.manager.Resume(ctx, s.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != models.StatusActive {
		t.Fatalf("status = %s", resumed.Status)
	}
	if got := f.sink.ofType(models.EventSessionResumed); len(got) != 1 || got[0].Transition != "paused->active" {
		t.Fatalf("resumed events = %+v", got)
	}
}

func TestHeartbeatBumpsUpdatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, "user-1")
	f.clock.Advance(5 * time.Minute)

	if err := f.manager.Heartbeat(ctx, s.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, err := f.manager.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(f.clock.Now()) {
		t.Fatalf("updated at = %v, want %v", got.UpdatedAt, f.clock.Now())
	}
	if got.Status != models.StatusActive {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestInterrupt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, "user-1")

	interrupted, err := f.manager.Interrupt(ctx, s.ID, "laptop died")
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if interrupted.Status != models.StatusInterrupted || interrupted.InterruptReason != "laptop died" {
		t.Fatalf("unexpected session %+v", interrupted)
	}
	if interrupted.EndedAt != nil {
		t.Fatal("interrupt should not set ended at")
	}

	again, err := f.manager.Interrupt(ctx, s.ID, "again")
	if err != nil {
		t.Fatalf("second interrupt: %v", err)
	}
	if again.InterruptReason != "laptop died" {
		t.Fatalf("terminal session was modified: %q", again.InterruptReason)
	}
	if n := len(f.sink.ofType(models.EventSessionInterrupted)); n != 1 {
		t.Fatalf("expected 1 interrupted event, got %d", n)
	}
}

// stealingStore terminates the session between the manager's read and its
// compare-and-swap.
type stealingStore struct {
	*store.Memory
	steal models.Status
}

func (s *stealingStore) UpdateStatus(ctx context.Context, id string, expected, next models.Status, fields models.SessionUpdate) (*models.WorkSession, error) {
	if s.steal != "" {
		target := s.steal
		s.steal = ""
		if _, err := s.Memory.UpdateStatus(ctx, id, expected, target, models.SessionUpdate{UpdatedAt: fields.UpdatedAt}); err != nil {
			return nil, err
		}
	}
	return s.Memory.UpdateStatus(ctx, id, expected, next, fields)
}

func TestStopRaceReturnsTerminalSession(t *testing.T) {
	clock := newFakeClock()
	st := &stealingStore{Memory: store.NewMemory()}
	sink := &recordingSink{}
	m := New(st, sink, WithClock(clock.Now))
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st.steal = models.StatusInterrupted

	got, err := m.Stop(ctx, s.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got.Status != models.StatusInterrupted {
		t.Fatalf("expected concurrent interrupt to win, got %s", got.Status)
	}
	if n := len(sink.ofType(models.EventSessionStopped)); n != 0 {
		t.Fatalf("expected no stopped event, got %d", n)
	}
}

func TestStopAfterConcurrentPauseCompletes(t *testing.T) {
	clock := newFakeClock()
	st := &stealingStore{Memory: store.NewMemory()}
	sink := &recordingSink{}
	m := New(st, sink, WithClock(clock.Now))
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(20 * time.Minute)
	st.steal = models.StatusPaused

	got, err := m.Stop(ctx, s.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RawDurationMinutes != 20 || got.BillableDurationMinutes != 30 {
		t.Fatalf("expected 20/30 minutes, got %d/%d", got.RawDurationMinutes, got.BillableDurationMinutes)
	}
	events := sink.ofType(models.EventSessionStopped)
	if len(events) != 1 {
		t.Fatalf("expected one stopped event, got %d", len(events))
	}
	if events[0].Transition != "paused->completed" {
		t.Fatalf("expected paused->completed, got %q", events[0].Transition)
	}
}

func TestInterruptAfterConcurrentPauseInterrupts(t *testing.T) {
	st := &stealingStore{Memory: store.NewMemory()}
	m := New(st, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st.steal = models.StatusPaused

	got, err := m.Interrupt(ctx, s.ID, "meeting")
	if err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if got.Status != models.StatusInterrupted || got.InterruptReason != "meeting" {
		t.Fatalf("expected interrupted with reason, got %s %q", got.Status, got.InterruptReason)
	}
}

func TestPauseRaceIsInvalidTransition(t *testing.T) {
	st := &stealingStore{Memory: store.NewMemory()}
	m := New(st, nil)
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st.steal = models.StatusCompleted

	if _, err := m.Pause(ctx, s.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	var logs bytes.Buffer
	sink := &recordingSink{err: errors.New("sink down")}
	m := New(store.NewMemory(), sink, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	s, err := m.Start(context.Background(), "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Stop(context.Background(), s.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(logs.String(), "audit record failed") {
		t.Fatalf("expected warning in logs, got %q", logs.String())
	}
}

func TestAuditWritesToStore(t *testing.T) {
	st := store.NewMemory()
	m := New(st, audit.NewStoreSink(st))
	ctx := context.Background()

	s, err := m.Start(ctx, "user-1", models.Attributes{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Heartbeat(ctx, s.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if _, err := m.Stop(ctx, s.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	events, err := st.ListAudit(ctx, s.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	want := []string{models.EventSessionStarted, models.EventSessionHeartbeat, models.EventSessionStopped}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, want[i])
		}
		if ev.ID == "" {
			t.Fatalf("event %d has no id", i)
		}
	}
}

func TestCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Current(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := f.start(t, "user-1")
	if _, err := f.manager.Pause(ctx, first.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got, err := f.manager.Current(ctx, "user-1")
	if err != nil || got.ID != first.ID {
		t.Fatalf("expected paused session %s, got %v, %v", first.ID, got, err)
	}

	f.clock.Advance(time.Minute)
	second := f.start(t, "user-1")
	got, err = f.manager.Current(ctx, "user-1")
	if err != nil || got.ID != second.ID {
		t.Fatalf("expected active session %s, got %v, %v", second.ID, got, err)
	}
}

func TestReapStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.start(t, "user-1")
	f.clock.Advance(40 * time.Minute)
	fresh := f.start(t, "user-2")
	f.clock.Advance(10 * time.Minute)

	reaped, err := f.manager.ReapStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(reaped) != 1 || reaped[0].ID != stale.ID {
		t.Fatalf("expected only %s reaped, got %+v", stale.ID, reaped)
	}
	if reaped[0].InterruptReason != "no heartbeat for 30m0s" {
		t.Fatalf("reason = %q", reaped[0].InterruptReason)
	}

	got, err := f.manager.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusActive {
		t.Fatalf("fresh session status = %s", got.Status)
	}

	if _, err := f.manager.ReapStale(ctx, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero idle, got %v", err)
	}
}
