package db

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

// toUTC normalizes timestamps so SQLite's text comparisons stay ordered
func toUTC(s *models.WorkSession) {
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.StartedAt = s.StartedAt.UTC()
	if s.EndedAt != nil {
		t := s.EndedAt.UTC()
		s.EndedAt = &t
	}
}

// FindActiveByUser returns the user's active session
func (s *Store) FindActiveByUser(ctx context.Context, userID string) (*models.WorkSession, error) {
	var session models.WorkSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StatusActive).
		First(&session).Error
	if err != nil {
		return nil, wrap("find active session", err)
	}
	return &session, nil
}

// CreateIfNoneActive starts a new session unless the user already has one running
func (s *Store) CreateIfNoneActive(ctx context.Context, session *models.WorkSession) (*models.WorkSession, bool, error) {
	var result *models.WorkSession
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Check if there's already an active session
		var existing models.WorkSession
		err := tx.Where("user_id = ? AND status = ?", session.UserID, models.StatusActive).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := *session
		toUTC(&row)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrActiveExists
			}
			return err
		}
		result = &row
		created = true
		return nil
	})
	if err != nil {
		return nil, false, wrap("create session", err)
	}
	return result, created, nil
}

// GetByID retrieves a session by ID
func (s *Store) GetByID(ctx context.Context, id string) (*models.WorkSession, error) {
	var session models.WorkSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, wrap("get session", err)
	}
	return &session, nil
}

// UpdateStatus applies a transition only if the stored status still matches expected
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next models.Status, fields models.SessionUpdate) (*models.WorkSession, error) {
	values := map[string]any{
		"status":     next,
		"updated_at": fields.UpdatedAt.UTC(),
	}
	if fields.EndedAt != nil {
		values["ended_at"] = fields.EndedAt.UTC()
	}
	if fields.RawDurationMinutes != nil {
		values["raw_duration_minutes"] = *fields.RawDurationMinutes
	}
	if fields.BillableDurationMinutes != nil {
		values["billable_duration_minutes"] = *fields.BillableDurationMinutes
	}
	if fields.InterruptReason != nil {
		values["interrupt_reason"] = *fields.InterruptReason
	}

	var session models.WorkSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.WorkSession{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(values)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return store.ErrActiveExists
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.WorkSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrNotFound
			}
			return store.ErrStatusMismatch
		}
		return tx.Where("id = ?", id).First(&session).Error
	})
	if err != nil {
		return nil, wrap("update session status", err)
	}
	return &session, nil
}

// FindEligibleForImport returns approved, completed sessions not yet billed
func (s *Store) FindEligibleForImport(ctx context.Context, userID string, r models.DateRange) ([]models.WorkSession, error) {
	var sessions []models.WorkSession

	q := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND approved = ? AND consumed_by_payroll = ? AND billable_duration_minutes > 0",
			userID, models.StatusCompleted, true, false)
	q = withRange(q, r)

	if err := q.Order("started_at ASC").Find(&sessions).Error; err != nil {
		return nil, wrap("find eligible sessions", err)
	}
	return sessions, nil
}

// FindStaleActive returns active sessions without a heartbeat since cutoff
func (s *Store) FindStaleActive(ctx context.Context, cutoff time.Time) ([]models.WorkSession, error) {
	var sessions []models.WorkSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusActive, cutoff.UTC()).
		Order("started_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, wrap("find stale sessions", err)
	}
	return sessions, nil
}

// ListSessions returns sessions matching the filter, oldest first
func (s *Store) ListSessions(ctx context.Context, f models.SessionFilter) ([]models.WorkSession, error) {
	var sessions []models.WorkSession

	q := s.db.WithContext(ctx)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = withRange(q, f.Range)

	if f.Limit > 0 {
		// Take the newest N, then flip back to chronological order
		if err := q.Order("started_at DESC").Limit(f.Limit).Find(&sessions).Error; err != nil {
			return nil, wrap("list sessions", err)
		}
		slices.Reverse(sessions)
		return sessions, nil
	}
	if err := q.Order("started_at ASC").Find(&sessions).Error; err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}

// SetApproved flips the externally managed approval flag
func (s *Store) SetApproved(ctx context.Context, id string, approved bool) (*models.WorkSession, error) {
	var session models.WorkSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.WorkSession{}).Where("id = ?", id).UpdateColumn("approved", approved).Error; err != nil {
			return err
		}
		session.Approved = approved
		return nil
	})
	if err != nil {
		return nil, wrap("set approval", err)
	}
	return &session, nil
}

func withRange(q *gorm.DB, r models.DateRange) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where("started_at >= ?", r.From.UTC())
	}
	if !r.To.IsZero() {
		q = q.Where("started_at < ?", r.To.UTC())
	}
	return q
}
