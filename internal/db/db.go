package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

// Store is the gorm/SQLite implementation of store.Store
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// auditRecord is the persisted shape of models.AuditEvent
type auditRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Type       string `gorm:"not null;index"`
	SessionID  string `gorm:"index"`
	UserID     string
	Transition string
	Timestamp  int64  `gorm:"not null"` // unix nanoseconds, keeps ordering exact
	Details    string // JSON object
}

func (auditRecord) TableName() string { return "audit_events" }

// Open sets up the database connection at path and runs migrations.
// An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get database path: %w", err)
		}
		path = p
	}

	// Ensure the directory exists
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create worklog directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent), // Quiet by default
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; funnel everything through one connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// DefaultPath returns the path to the SQLite database file
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".worklog", "worklog.db"), nil
}

// runMigrations creates/updates the database schema
func (s *Store) runMigrations() error {
	if err := s.db.AutoMigrate(
		&models.WorkSession{},
		&models.PayrollPeriod{},
		&models.PayrollEntry{},
		&auditRecord{},
	); err != nil {
		return err
	}
	// At most one active session per user, enforced by the database itself
	return s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_sessions_one_active
		ON work_sessions (user_id) WHERE status = 'active'`).Error
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation reports whether err came from a unique index
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrap maps gorm errors onto the store's sentinel errors
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
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
