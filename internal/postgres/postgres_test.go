package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/store/storetest"
)

// Set WORKLOG_TEST_POSTGRES_URL to a disposable database to run these.
func TestPostgresStoreContract(t *testing.T) {
	url := os.Getenv("WORKLOG_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("WORKLOG_TEST_POSTGRES_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		s, err := Connect(ctx, url)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE work_sessions, payroll_periods, payroll_entries, audit_events`); err != nil {
			s.Close()
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatal("nil is not a unique violation")
	}
	if isUniqueViolation(context.Canceled) {
		t.Fatal("unexpected match")
	}
}
