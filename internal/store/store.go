// Package store defines the persistence contract for work sessions and
// payroll entries, plus an in-memory implementation.
//
// Adapters must enforce two invariants themselves rather than leaving them to
// callers: at most one active session per user, and at most one payroll entry
// per (period, source session). Both are checked inside the adapter's own
// transaction so concurrent callers cannot both win.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/balkashynov/worklog/internal/models"
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrActiveExists indicates the user already has an active session.
	ErrActiveExists = errors.New("user already has an active session")
	// ErrStatusMismatch indicates a compare-and-swap saw a different status.
	ErrStatusMismatch = errors.New("session status changed concurrently")
	// ErrAlreadyImported indicates the session is already billed.
	ErrAlreadyImported = errors.New("session already imported")
	// ErrUnavailable indicates a transient infrastructure failure.
	ErrUnavailable = errors.New("store unavailable")
)

// SessionStore persists work sessions.
type SessionStore interface {
	// FindActiveByUser returns the user's active session or ErrNotFound.
	FindActiveByUser(ctx context.Context, userID string) (*models.WorkSession, error)
	// CreateIfNoneActive inserts s unless the user already has an active
	// session, in which case the existing one is returned with created=false.
	// A lost race surfaces as ErrActiveExists.
	CreateIfNoneActive(ctx context.Context, s *models.WorkSession) (session *models.WorkSession, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.WorkSession, error)
	// UpdateStatus moves a session from expected to next and applies fields.
	// It fails with ErrStatusMismatch if the stored status is not expected,
	// and with ErrActiveExists if next is active and the user already has
	// another active session.
	UpdateStatus(ctx context.Context, id string, expected, next models.Status, fields models.SessionUpdate) (*models.WorkSession, error)
	// FindEligibleForImport returns completed, approved, unconsumed sessions
	// with billable time whose start falls inside r, oldest first.
	FindEligibleForImport(ctx context.Context, userID string, r models.DateRange) ([]models.WorkSession, error)
	// FindStaleActive returns active sessions last updated before cutoff.
	FindStaleActive(ctx context.Context, cutoff time.Time) ([]models.WorkSession, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.WorkSession, error)
	SetApproved(ctx context.Context, id string, approved bool) (*models.WorkSession, error)
}

// PayrollStore persists payroll periods and entries.
type PayrollStore interface {
	HasPayrollEntry(ctx context.Context, periodID, sessionID string) (bool, error)
	// InsertPayrollEntryAndMarkConsumed writes entry and flags its source
	// session as consumed in one transaction. If either half cannot apply,
	// neither does; a duplicate yields ErrAlreadyImported.
	InsertPayrollEntryAndMarkConsumed(ctx context.Context, entry *models.PayrollEntry) error
	ListPayrollEntries(ctx context.Context, filter models.EntryFilter) ([]models.PayrollEntry, error)
	CreatePeriod(ctx context.Context, p *models.PayrollPeriod) error
	GetPeriod(ctx context.Context, id string) (*models.PayrollPeriod, error)
	ListPeriods(ctx context.Context) ([]models.PayrollPeriod, error)
}

// AuditLog appends audit events.
type AuditLog interface {
	AppendAudit(ctx context.Context, ev models.AuditEvent) error
	ListAudit(ctx context.Context, sessionID string) ([]models.AuditEvent, error)
}

// Store is everything the tracker, importer and transports need.
type Store interface {
	SessionStore
	PayrollStore
	AuditLog
	Close() error
}
