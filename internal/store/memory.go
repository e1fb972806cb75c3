package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/balkashynov/worklog/internal/models"
)

// Memory is a Store kept in process memory. Its mutex plays the role of a
// database transaction; it is meant for tests and single-process demos.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*models.WorkSession
	entries  map[string]*models.PayrollEntry
	periods  map[string]*models.PayrollPeriod
	audit    []models.AuditEvent

	// FailInsert, when set, is called before each payroll insert and may
	// return an error to simulate a store failure for that session.
	FailInsert func(sessionID string) error
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*models.WorkSession),
		entries:  make(map[string]*models.PayrollEntry),
		periods:  make(map[string]*models.PayrollPeriod),
	}
}

func cloneSession(s *models.WorkSession) *models.WorkSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func (m *Memory) activeLocked(userID string) *models.WorkSession {
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == models.StatusActive {
			return s
		}
	}
	return nil
}

func (m *Memory) FindActiveByUser(_ context.Context, userID string) (*models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeLocked(userID); s != nil {
		return cloneSession(s), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateIfNoneActive(_ context.Context, s *models.WorkSession) (*models.WorkSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.activeLocked(s.UserID); existing != nil {
		return cloneSession(existing), false, nil
	}
	if _, dup := m.sessions[s.ID]; dup {
		return nil, false, fmt.Errorf("%w: duplicate session id %s", ErrUnavailable, s.ID)
	}
	m.sessions[s.ID] = cloneSession(s)
	return cloneSession(s), true, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, expected, next models.Status, fields models.SessionUpdate) (*models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != expected {
		return nil, ErrStatusMismatch
	}
	if next == models.StatusActive && expected != models.StatusActive {
		if other := m.activeLocked(s.UserID); other != nil && other.ID != id {
			return nil, ErrActiveExists
		}
	}
	fields.Apply(s, next)
	return cloneSession(s), nil
}

func (m *Memory) FindEligibleForImport(_ context.Context, userID string, r models.DateRange) ([]models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkSession
	for _, s := range m.sessions {
		if s.UserID != userID || s.Status != models.StatusCompleted || !s.Approved || s.ConsumedByPayroll {
			continue
		}
		if s.BillableDurationMinutes <= 0 || !r.Contains(s.StartedAt) {
			continue
		}
		out = append(out, *cloneSession(s))
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) FindStaleActive(_ context.Context, cutoff time.Time) ([]models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkSession
	for _, s := range m.sessions {
		if s.Status == models.StatusActive && s.UpdatedAt.Before(cutoff) {
			out = append(out, *cloneSession(s))
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) ListSessions(_ context.Context, f models.SessionFilter) ([]models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkSession
	for _, s := range m.sessions {
		if f.UserID != "" && s.UserID != f.UserID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if !f.Range.Contains(s.StartedAt) {
			continue
		}
		out = append(out, *cloneSession(s))
	}
	sortByStart(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (m *Memory) SetApproved(_ context.Context, id string, approved bool) (*models.WorkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Approved = approved
	return cloneSession(s), nil
}

func (m *Memory) HasPayrollEntry(_ context.Context, periodID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasEntryLocked(periodID, sessionID), nil
}

func (m *Memory) hasEntryLocked(periodID, sessionID string) bool {
	for _, e := range m.entries {
		if e.PeriodID == periodID && e.SourceSessionID != nil && *e.SourceSessionID == sessionID {
			return true
		}
	}
	return false
}

func (m *Memory) InsertPayrollEntryAndMarkConsumed(_ context.Context, entry *models.PayrollEntry) error {
	if entry.SourceSessionID == nil {
		return fmt.Errorf("payroll entry %s has no source session", entry.ID)
	}
	sessionID := *entry.SourceSessionID

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		if err := m.FailInsert(sessionID); err != nil {
			return err
		}
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.ConsumedByPayroll || m.hasEntryLocked(entry.PeriodID, sessionID) {
		return ErrAlreadyImported
	}
	e := *entry
	id := sessionID
	e.SourceSessionID = &id
	m.entries[e.ID] = &e
	s.ConsumedByPayroll = true
	return nil
}

func (m *Memory) ListPayrollEntries(_ context.Context, f models.EntryFilter) ([]models.PayrollEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayrollEntry
	for _, e := range m.entries {
		if f.PeriodID != "" && e.PeriodID != f.PeriodID {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].WorkDate.Before(out[j].WorkDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreatePeriod(_ context.Context, p *models.PayrollPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.periods[p.ID]; dup {
		return fmt.Errorf("%w: duplicate period id %s", ErrUnavailable, p.ID)
	}
	c := *p
	m.periods[p.ID] = &c
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, id string) (*models.PayrollPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) ListPeriods(_ context.Context) ([]models.PayrollPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PayrollPeriod, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsOn.Before(out[j].StartsOn) })
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, ev models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, ev)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, sessionID string) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range m.audit {
		if sessionID == "" || ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func sortByStart(list []models.WorkSession) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartedAt.Before(list[j].StartedAt)
	})
}
