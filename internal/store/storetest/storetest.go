// Package storetest is a contract suite shared by every store.Store adapter.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

// Run exercises the full store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"CreateIfNoneActiveReturnsExisting", testCreateIfNoneActiveReturnsExisting},
		{"ConcurrentCreateSingleActive", testConcurrentCreateSingleActive},
		{"GetByIDNotFound", testGetByIDNotFound},
		{"UpdateStatusCompareAndSwap", testUpdateStatusCompareAndSwap},
		{"ResumeBlockedByOtherActive", testResumeBlockedByOtherActive},
		{"FindEligibleForImport", testFindEligibleForImport},
		{"InsertEntryAndMarkConsumed", testInsertEntryAndMarkConsumed},
		{"FindStaleActive", testFindStaleActive},
		{"ListSessions", testListSessions},
		{"Periods", testPeriods},
		{"Audit", testAudit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

var seq int

func newSession(userID string, startedAt time.Time) *models.WorkSession {
	seq++
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", seq)
	return models.NewWorkSession(id, userID, models.Attributes{Activity: "work"}, startedAt)
}

// completed inserts a session and drives it to completed with the given
// billable minutes and approval flag.
func completed(t *testing.T, st store.Store, userID string, startedAt time.Time, billable int, approved bool) *models.WorkSession {
	t.Helper()
	ctx := context.Background()
	s, created, err := st.CreateIfNoneActive(ctx, newSession(userID, startedAt))
	if err != nil || !created {
		t.Fatalf("create session: created=%v err=%v", created, err)
	}
	end := startedAt.Add(time.Duration(billable) * time.Minute)
	raw := billable
	s, err = st.UpdateStatus(ctx, s.ID, models.StatusActive, models.StatusCompleted, models.SessionUpdate{
		UpdatedAt:               end,
		EndedAt:                 &end,
		RawDurationMinutes:      &raw,
		BillableDurationMinutes: &billable,
	})
	if err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if approved {
		if s, err = st.SetApproved(ctx, s.ID, true); err != nil {
			t.Fatalf("approve session: %v", err)
		}
	}
	return s
}

func testCreateIfNoneActiveReturnsExisting(t *testing.T, st store.Store) {
	ctx := context.Background()
	first, created, err := st.CreateIfNoneActive(ctx, newSession("u1", base))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := st.CreateIfNoneActive(ctx, newSession("u1", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("expected existing session to be returned")
	}
	if second.ID != first.ID {
		t.Fatalf("got session %s, want %s", second.ID, first.ID)
	}

	active, err := st.FindActiveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("active = %s, want %s", active.ID, first.ID)
	}
	if _, err := st.FindActiveByUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConcurrentCreateSingleActive(t *testing.T, st store.Store) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	var errs []error
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := st.CreateIfNoneActive(ctx, newSessionLocked(&mu, "racer"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil && !errors.Is(err, store.ErrActiveExists) {
				errs = append(errs, err)
			}
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if createdCount != 1 {
		t.Fatalf("created %d sessions, want exactly 1", createdCount)
	}
	list, err := st.ListSessions(ctx, models.SessionFilter{UserID: "racer", Status: models.StatusActive})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("found %d active sessions, want 1", len(list))
	}
}

func newSessionLocked(mu *sync.Mutex, userID string) *models.WorkSession {
	mu.Lock()
	defer mu.Unlock()
	return newSession(userID, base)
}

func testGetByIDNotFound(t *testing.T, st store.Store) {
	if _, err := st.GetByID(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.SetApproved(context.Background(), "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from SetApproved, got %v", err)
	}
}

func testUpdateStatusCompareAndSwap(t *testing.T, st store.Store) {
	ctx := context.Background()
	s, _, err := st.CreateIfNoneActive(ctx, newSession("u1", base))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paused, err := st.UpdateStatus(ctx, s.ID, models.StatusActive, models.StatusPaused, models.SessionUpdate{UpdatedAt: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != models.StatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if !paused.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("updated_at = %v, want %v", paused.UpdatedAt, base.Add(time.Minute))
	}

	_, err = st.UpdateStatus(ctx, s.ID, models.StatusActive, models.StatusPaused, models.SessionUpdate{UpdatedAt: base})
	if !errors.Is(err, store.ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	_, err = st.UpdateStatus(ctx, "missing", models.StatusActive, models.StatusPaused, models.SessionUpdate{UpdatedAt: base})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	end := base.Add(20 * time.Minute)
	raw, billable := 20, 30
	reason := "ignored"
	done, err := st.UpdateStatus(ctx, s.ID, models.StatusPaused, models.StatusCompleted, models.SessionUpdate{
		UpdatedAt:               end,
		EndedAt:                 &end,
		RawDurationMinutes:      &raw,
		BillableDurationMinutes: &billable,
		InterruptReason:         &reason,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.EndedAt == nil || !done.EndedAt.Equal(end) {
		t.Fatalf("ended_at = %v, want %v", done.EndedAt, end)
	}
	if done.RawDurationMinutes != 20 || done.BillableDurationMinutes != 30 {
		t.Fatalf("durations = %d/%d, want 20/30", done.RawDurationMinutes, done.BillableDurationMinutes)
	}

	reloaded, err := st.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != models.StatusCompleted || reloaded.BillableDurationMinutes != 30 {
		t.Fatalf("reloaded = %+v", reloaded)
	}
}

func testResumeBlockedByOtherActive(t *testing.T, st store.Store) {
	ctx := context.Background()
	first, _, err := st.CreateIfNoneActive(ctx, newSession("u1", base))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.UpdateStatus(ctx, first.ID, models.StatusActive, models.StatusPaused, models.SessionUpdate{UpdatedAt: base}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	second, created, err := st.CreateIfNoneActive(ctx, newSession("u1", base.Add(time.Minute)))
	if err != nil || !created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}

	_, err = st.UpdateStatus(ctx, first.ID, models.StatusPaused, models.StatusActive, models.SessionUpdate{UpdatedAt: base.Add(2 * time.Minute)})
	if !errors.Is(err, store.ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}
	stillPaused, err := st.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stillPaused.Status != models.StatusPaused {
		t.Fatalf("status = %s, want paused", stillPaused.Status)
	}
	if _, err := st.UpdateStatus(ctx, second.ID, models.StatusActive, models.StatusActive, models.SessionUpdate{UpdatedAt: base.Add(3 * time.Minute)}); err != nil {
		t.Fatalf("touch active: %v", err)
	}
}

func testFindEligibleForImport(t *testing.T, st store.Store) {
	ctx := context.Background()
	day := func(d int) time.Time { return base.AddDate(0, 0, d) }

	later := completed(t, st, "u1", day(2), 30, true)
	earlier := completed(t, st, "u1", day(0), 15, true)
	completed(t, st, "u1", day(1), 45, false) // not approved
	completed(t, st, "u1", day(1), 0, true)   // nothing to bill
	completed(t, st, "u2", day(1), 60, true)  // other user
	outside := completed(t, st, "u1", day(9), 15, true)

	active, _, err := st.CreateIfNoneActive(ctx, newSession("u1", day(3)))
	if err != nil {
		t.Fatalf("create active: %v", err)
	}
	if _, err := st.SetApproved(ctx, active.ID, true); err != nil {
		t.Fatalf("approve active: %v", err)
	}

	got, err := st.FindEligibleForImport(ctx, "u1", models.DateRange{From: day(0), To: day(5)})
	if err != nil {
		t.Fatalf("find eligible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d eligible sessions, want 2: %+v", len(got), got)
	}
	if got[0].ID != earlier.ID || got[1].ID != later.ID {
		t.Fatalf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, earlier.ID, later.ID)
	}

	all, err := st.FindEligibleForImport(ctx, "u1", models.DateRange{})
	if err != nil {
		t.Fatalf("find eligible unbounded: %v", err)
	}
	if len(all) != 3 || all[2].ID != outside.ID {
		t.Fatalf("unbounded eligible = %d sessions", len(all))
	}
}

func testInsertEntryAndMarkConsumed(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := completed(t, st, "u1", base, 30, true)
	period := &models.PayrollPeriod{ID: "10000000-0000-4000-8000-000000000001", Label: "March", StartsOn: base, EndsOn: base.AddDate(0, 1, 0), CreatedAt: base}
	if err := st.CreatePeriod(ctx, period); err != nil {
		t.Fatalf("create period: %v", err)
	}

	has, err := st.HasPayrollEntry(ctx, period.ID, s.ID)
	if err != nil || has {
		t.Fatalf("has entry before insert: %v %v", has, err)
	}

	sessionID := s.ID
	entry := &models.PayrollEntry{
		ID:              "20000000-0000-4000-8000-000000000001",
		CreatedAt:       base,
		PeriodID:        period.ID,
		UserID:          "u1",
		SourceSessionID: &sessionID,
		WorkDate:        base,
		HoursWorked:     0.5,
		HourlyRate:      50,
		Amount:          25,
		Category:        "implementation",
		Description:     "work",
		CreatedBy:       "system",
	}
	if err := st.InsertPayrollEntryAndMarkConsumed(ctx, entry); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	has, err = st.HasPayrollEntry(ctx, period.ID, s.ID)
	if err != nil || !has {
		t.Fatalf("has entry after insert: %v %v", has, err)
	}
	consumed, err := st.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !consumed.ConsumedByPayroll {
		t.Fatal("expected session to be marked consumed")
	}

	dup := *entry
	dup.ID = "20000000-0000-4000-8000-000000000002"
	if err := st.InsertPayrollEntryAndMarkConsumed(ctx, &dup); !errors.Is(err, store.ErrAlreadyImported) {
		t.Fatalf("expected ErrAlreadyImported, got %v", err)
	}

	entries, err := st.ListPayrollEntries(ctx, models.EntryFilter{PeriodID: period.ID})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].SourceSessionID == nil || *entries[0].SourceSessionID != s.ID {
		t.Fatalf("entry source = %v, want %s", entries[0].SourceSessionID, s.ID)
	}
	if entries[0].Amount != 25 {
		t.Fatalf("amount = %v, want 25", entries[0].Amount)
	}

	eligible, err := st.FindEligibleForImport(ctx, "u1", models.DateRange{})
	if err != nil {
		t.Fatalf("find eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("consumed session still eligible: %+v", eligible)
	}
}

func testFindStaleActive(t *testing.T, st store.Store) {
	ctx := context.Background()
	stale, _, err := st.CreateIfNoneActive(ctx, newSession("u1", base))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, _, err := st.CreateIfNoneActive(ctx, newSession("u2", base))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.UpdateStatus(ctx, fresh.ID, models.StatusActive, models.StatusActive, models.SessionUpdate{UpdatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got, err := st.FindStaleActive(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("find stale: %v", err)
	}
	if len(got) != 1 || got[0].ID != stale.ID {
		t.Fatalf("stale = %+v, want only %s", got, stale.ID)
	}
}

func testListSessions(t *testing.T, st store.Store) {
	ctx := context.Background()
	completed(t, st, "u1", base, 15, false)
	completed(t, st, "u1", base.Add(time.Hour), 15, false)
	if _, _, err := st.CreateIfNoneActive(ctx, newSession("u1", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := st.ListSessions(ctx, models.SessionFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d sessions, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.Before(all[i-1].StartedAt) {
			t.Fatalf("sessions out of order: %s before %s", all[i-1].StartedAt, all[i].StartedAt)
		}
	}
	done, err := st.ListSessions(ctx, models.SessionFilter{UserID: "u1", Status: models.StatusCompleted})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("got %d completed, want 2", len(done))
	}
	ranged, err := st.ListSessions(ctx, models.SessionFilter{UserID: "u1", Range: models.DateRange{From: base.Add(30 * time.Minute)}})
	if err != nil {
		t.Fatalf("list ranged: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("got %d ranged, want 2", len(ranged))
	}
}

func testPeriods(t *testing.T, st store.Store) {
	ctx := context.Background()
	april := &models.PayrollPeriod{ID: "10000000-0000-4000-8000-000000000004", Label: "April", StartsOn: base.AddDate(0, 1, 0), EndsOn: base.AddDate(0, 2, 0), CreatedAt: base}
	march := &models.PayrollPeriod{ID: "10000000-0000-4000-8000-000000000003", Label: "March", StartsOn: base, EndsOn: base.AddDate(0, 1, 0), CreatedAt: base}
	for _, p := range []*models.PayrollPeriod{april, march} {
		if err := st.CreatePeriod(ctx, p); err != nil {
			t.Fatalf("create period: %v", err)
		}
	}
	got, err := st.GetPeriod(ctx, march.ID)
	if err != nil {
		t.Fatalf("get period: %v", err)
	}
	if got.Label != "March" {
		t.Fatalf("label = %q", got.Label)
	}
	if _, err := st.GetPeriod(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, err := st.ListPeriods(ctx)
	if err != nil {
		t.Fatalf("list periods: %v", err)
	}
	if len(list) != 2 || list[0].Label != "March" {
		t.Fatalf("periods = %+v", list)
	}
}

func testAudit(t *testing.T, st store.Store) {
	ctx := context.Background()
	events := []models.AuditEvent{
		{ID: "30000000-0000-4000-8000-000000000001", Type: models.EventSessionStarted, SessionID: "s1", UserID: "u1", Transition: "active", Timestamp: base},
		{ID: "30000000-0000-4000-8000-000000000002", Type: models.EventSessionStopped, SessionID: "s1", UserID: "u1", Transition: "active->completed", Timestamp: base.Add(time.Minute), Details: map[string]string{"billable_minutes": "15"}},
		{ID: "30000000-0000-4000-8000-000000000003", Type: models.EventSessionStarted, SessionID: "s2", UserID: "u2", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := st.AppendAudit(ctx, ev); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}
	got, err := st.ListAudit(ctx, "s1")
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[1].Details["billable_minutes"] != "15" {
		t.Fatalf("details = %v", got[1].Details)
	}
}
