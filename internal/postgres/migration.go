package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS work_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		module TEXT NOT NULL DEFAULT '',
		activity TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		project_ref TEXT NOT NULL DEFAULT '',
		order_ref TEXT NOT NULL DEFAULT '',
		task_ref TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		raw_duration_minutes INTEGER NOT NULL DEFAULT 0,
		billable_duration_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'completed', 'interrupted')),
		interrupt_reason TEXT NOT NULL DEFAULT '',
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		consumed_by_payroll BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_sessions_one_active ON work_sessions (user_id) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_work_sessions_user_started ON work_sessions (user_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_work_sessions_stale ON work_sessions (updated_at) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS payroll_periods (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		starts_on TIMESTAMPTZ NOT NULL,
		ends_on TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payroll_entries (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		source_session_id TEXT,
		project_ref TEXT NOT NULL DEFAULT '',
		order_ref TEXT NOT NULL DEFAULT '',
		task_ref TEXT NOT NULL DEFAULT '',
		work_date TIMESTAMPTZ NOT NULL,
		hours_worked DOUBLE PRECISION NOT NULL,
		hourly_rate DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (period_id, source_session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payroll_entries_period ON payroll_entries (period_id, work_date)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		transition TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL,
		details JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events (session_id, occurred_at)`,
}

// RunMigration applies the schema; every statement is idempotent
func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
