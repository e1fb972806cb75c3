// Package postgres is the pgx-backed implementation of store.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

const sessionColumns = `id, user_id, module, activity, category, priority, project_ref, order_ref, task_ref,
	started_at, ended_at, raw_duration_minutes, billable_duration_minutes, status, interrupt_reason,
	approved, consumed_by_payroll, created_at, updated_at`

const entryColumns = `id, period_id, user_id, source_session_id, project_ref, order_ref, task_ref, work_date,
	hours_worked, hourly_rate, amount, category, description, created_by, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pool, verifies it and applies migrations
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresStore(p), nil
}

func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (*models.WorkSession, error) {
	var s models.WorkSession
	var status string
	var endedAt *time.Time
	err := row.Scan(&s.ID, &s.UserID, &s.Module, &s.Activity, &s.Category, &s.Priority,
		&s.ProjectRef, &s.OrderRef, &s.TaskRef, &s.StartedAt, &endedAt,
		&s.RawDurationMinutes, &s.BillableDurationMinutes, &status, &s.InterruptReason,
		&s.Approved, &s.ConsumedByPayroll, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.Status(status)
	s.EndedAt = endedAt
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]models.WorkSession, error) {
	defer rows.Close()
	var list []models.WorkSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrActiveExists),
		errors.Is(err, store.ErrStatusMismatch),
		errors.Is(err, store.ErrAlreadyImported):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
	}
}

func (r *PostgresStore) FindActiveByUser(ctx context.Context, userID string) (*models.WorkSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE user_id = $1 AND status = 'active' LIMIT 1`,
		userID))
	if err != nil {
		return nil, wrap("find active session", err)
	}
	return s, nil
}

func (r *PostgresStore) CreateIfNoneActive(ctx context.Context, s *models.WorkSession) (*models.WorkSession, bool, error) {
	// The partial unique index arbitrates races; losers get no row back
	row := r.pool.QueryRow(ctx,
		`INSERT INTO work_sessions (id, user_id, module, activity, category, priority, project_ref, order_ref, task_ref,
			started_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'active', $11, $12)
		 ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING
		 RETURNING `+sessionColumns,
		s.ID, s.UserID, s.Module, s.Activity, s.Category, s.Priority, s.ProjectRef, s.OrderRef, s.TaskRef,
		s.StartedAt, s.CreatedAt, s.UpdatedAt)
	created, err := scanSession(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap("create session", err)
	}

	existing, err := r.FindActiveByUser(ctx, s.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// The winner finished between our insert and this read
		return nil, false, store.ErrActiveExists
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresStore) GetByID(ctx context.Context, id string) (*models.WorkSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get session", err)
	}
	return s, nil
}

func (r *PostgresStore) UpdateStatus(ctx context.Context, id string, expected, next models.Status, fields models.SessionUpdate) (*models.WorkSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE work_sessions SET
			status = $3,
			updated_at = $4,
			ended_at = COALESCE($5, ended_at),
			raw_duration_minutes = COALESCE($6, raw_duration_minutes),
			billable_duration_minutes = COALESCE($7, billable_duration_minutes),
			interrupt_reason = COALESCE($8, interrupt_reason)
		 WHERE id = $1 AND status = $2
		 RETURNING `+sessionColumns,
		id, string(expected), string(next), fields.UpdatedAt,
		fields.EndedAt, fields.RawDurationMinutes, fields.BillableDurationMinutes, fields.InterruptReason))
	if err == nil {
		return s, nil
	}
	if isUniqueViolation(err) {
		return nil, store.ErrActiveExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrap("update session status", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM work_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, wrap("update session status", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrStatusMismatch
}

// rangeClause appends started_at bounds to a WHERE clause
func rangeClause(where []string, args []any, rg models.DateRange) ([]string, []any) {
	if !rg.From.IsZero() {
		args = append(args, rg.From)
		where = append(where, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !rg.To.IsZero() {
		args = append(args, rg.To)
		where = append(where, fmt.Sprintf("started_at < $%d", len(args)))
	}
	return where, args
}

func (r *PostgresStore) FindEligibleForImport(ctx context.Context, userID string, rg models.DateRange) ([]models.WorkSession, error) {
	where := []string{
		"user_id = $1",
		"status = 'completed'",
		"approved",
		"NOT consumed_by_payroll",
		"billable_duration_minutes > 0",
	}
	where, args := rangeClause(where, []any{userID}, rg)

	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE `+strings.Join(where, " AND ")+` ORDER BY started_at ASC`,
		args...)
	if err != nil {
		return nil, wrap("find eligible sessions", err)
	}
	list, err := collectSessions(rows)
	return list, wrap("find eligible sessions", err)
}

func (r *PostgresStore) FindStaleActive(ctx context.Context, cutoff time.Time) ([]models.WorkSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE status = 'active' AND updated_at < $1 ORDER BY started_at ASC`,
		cutoff)
	if err != nil {
		return nil, wrap("find stale sessions", err)
	}
	list, err := collectSessions(rows)
	return list, wrap("find stale sessions", err)
}

func (r *PostgresStore) ListSessions(ctx context.Context, f models.SessionFilter) ([]models.WorkSession, error) {
	where := []string{"TRUE"}
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	where, args = rangeClause(where, args, f.Range)

	query := `SELECT ` + sessionColumns + ` FROM work_sessions WHERE ` + strings.Join(where, " AND ")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query = `SELECT * FROM (` + query + fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d) recent ORDER BY started_at ASC`, len(args))
	} else {
		query += ` ORDER BY started_at ASC`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	list, err := collectSessions(rows)
	return list, wrap("list sessions", err)
}

func (r *PostgresStore) SetApproved(ctx context.Context, id string, approved bool) (*models.WorkSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE work_sessions SET approved = $2 WHERE id = $1 RETURNING `+sessionColumns,
		id, approved))
	if err != nil {
		return nil, wrap("set approval", err)
	}
	return s, nil
}

func (r *PostgresStore) HasPayrollEntry(ctx context.Context, periodID, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payroll_entries WHERE period_id = $1 AND source_session_id = $2)`,
		periodID, sessionID).Scan(&exists)
	if err != nil {
		return false, wrap("check payroll entry", err)
	}
	return exists, nil
}

func (r *PostgresStore) InsertPayrollEntryAndMarkConsumed(ctx context.Context, e *models.PayrollEntry) error {
	if e.SourceSessionID == nil {
		return fmt.Errorf("payroll entry %s has no source session", e.ID)
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE work_sessions SET consumed_by_payroll = TRUE WHERE id = $1 AND NOT consumed_by_payroll`,
			*e.SourceSessionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM work_sessions WHERE id = $1)`, *e.SourceSessionID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return store.ErrNotFound
			}
			return store.ErrAlreadyImported
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO payroll_entries (`+entryColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			e.ID, e.PeriodID, e.UserID, e.SourceSessionID, e.ProjectRef, e.OrderRef, e.TaskRef, e.WorkDate,
			e.HoursWorked, e.HourlyRate, e.Amount, e.Category, e.Description, e.CreatedBy, e.CreatedAt)
		if isUniqueViolation(err) {
			return store.ErrAlreadyImported
		}
		return err
	})
	return wrap("insert payroll entry", err)
}

func (r *PostgresStore) ListPayrollEntries(ctx context.Context, f models.EntryFilter) ([]models.PayrollEntry, error) {
	where := []string{"TRUE"}
	var args []any
	if f.PeriodID != "" {
		args = append(args, f.PeriodID)
		where = append(where, fmt.Sprintf("period_id = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM payroll_entries WHERE `+strings.Join(where, " AND ")+` ORDER BY work_date ASC, created_at ASC`,
		args...)
	if err != nil {
		return nil, wrap("list payroll entries", err)
	}
	defer rows.Close()

	var list []models.PayrollEntry
	for rows.Next() {
		var e models.PayrollEntry
		if err := rows.Scan(&e.ID, &e.PeriodID, &e.UserID, &e.SourceSessionID, &e.ProjectRef, &e.OrderRef, &e.TaskRef,
			&e.WorkDate, &e.HoursWorked, &e.HourlyRate, &e.Amount, &e.Category, &e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, wrap("list payroll entries", err)
		}
		list = append(list, e)
	}
	return list, wrap("list payroll entries", rows.Err())
}

func (r *PostgresStore) CreatePeriod(ctx context.Context, p *models.PayrollPeriod) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payroll_periods (id, label, starts_on, ends_on, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Label, p.StartsOn, p.EndsOn, p.CreatedAt)
	return wrap("create period", err)
}

func (r *PostgresStore) GetPeriod(ctx context.Context, id string) (*models.PayrollPeriod, error) {
	var p models.PayrollPeriod
	err := r.pool.QueryRow(ctx,
		`SELECT id, label, starts_on, ends_on, created_at FROM payroll_periods WHERE id = $1`, id).
		Scan(&p.ID, &p.Label, &p.StartsOn, &p.EndsOn, &p.CreatedAt)
	if err != nil {
		return nil, wrap("get period", err)
	}
	return &p, nil
}

func (r *PostgresStore) ListPeriods(ctx context.Context) ([]models.PayrollPeriod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, label, starts_on, ends_on, created_at FROM payroll_periods ORDER BY starts_on ASC`)
	if err != nil {
		return nil, wrap("list periods", err)
	}
	defer rows.Close()
	var list []models.PayrollPeriod
	for rows.Next() {
		var p models.PayrollPeriod
		if err := rows.Scan(&p.ID, &p.Label, &p.StartsOn, &p.EndsOn, &p.CreatedAt); err != nil {
			return nil, wrap("list periods", err)
		}
		list = append(list, p)
	}
	return list, wrap("list periods", rows.Err())
}

func (r *PostgresStore) AppendAudit(ctx context.Context, ev models.AuditEvent) error {
	var details any
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = b
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, type, session_id, user_id, transition, occurred_at, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.Type, ev.SessionID, ev.UserID, ev.Transition, ev.Timestamp, details)
	return wrap("append audit", err)
}

func (r *PostgresStore) ListAudit(ctx context.Context, sessionID string) ([]models.AuditEvent, error) {
	query := `SELECT id, type, session_id, user_id, transition, occurred_at, details FROM audit_events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += ` ORDER BY occurred_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list audit", err)
	}
	defer rows.Close()

	var list []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var details []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SessionID, &ev.UserID, &ev.Transition, &ev.Timestamp, &details); err != nil {
			return nil, wrap("list audit", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, fmt.Errorf("decode audit details for %s: %w", ev.ID, err)
			}
		}
		list = append(list, ev)
	}
	return list, wrap("list audit", rows.Err())
}
