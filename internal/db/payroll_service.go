package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/store"
)

// HasPayrollEntry checks whether a session was already imported into a period
func (s *Store) HasPayrollEntry(ctx context.Context, periodID, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PayrollEntry{}).
		Where("period_id = ? AND source_session_id = ?", periodID, sessionID).
		Count(&count).Error
	if err != nil {
		return false, wrap("check payroll entry", err)
	}
	return count > 0, nil
}

// InsertPayrollEntryAndMarkConsumed writes the entry and flags its session in one transaction
func (s *Store) InsertPayrollEntryAndMarkConsumed(ctx context.Context, entry *models.PayrollEntry) error {
	if entry.SourceSessionID == nil {
		return fmt.Errorf("payroll entry %s has no source session", entry.ID)
	}
	sessionID := *entry.SourceSessionID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// UpdateColumn keeps updated_at untouched; billing is not session activity
		res := tx.Model(&models.WorkSession{}).
			Where("id = ? AND consumed_by_payroll = ?", sessionID, false).
			UpdateColumn("consumed_by_payroll", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.WorkSession{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrNotFound
			}
			return store.ErrAlreadyImported
		}

		row := *entry
		row.CreatedAt = row.CreatedAt.UTC()
		row.WorkDate = row.WorkDate.UTC()
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrAlreadyImported
			}
			return err
		}
		return nil
	})
	return wrap("insert payroll entry", err)
}

// ListPayrollEntries returns entries ordered by work date
func (s *Store) ListPayrollEntries(ctx context.Context, f models.EntryFilter) ([]models.PayrollEntry, error) {
	var entries []models.PayrollEntry

	q := s.db.WithContext(ctx)
	if f.PeriodID != "" {
		q = q.Where("period_id = ?", f.PeriodID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if err := q.Order("work_date ASC, created_at ASC").Find(&entries).Error; err != nil {
		return nil, wrap("list payroll entries", err)
	}
	return entries, nil
}

// CreatePeriod stores a new payroll period
func (s *Store) CreatePeriod(ctx context.Context, p *models.PayrollPeriod) error {
	row := *p
	row.CreatedAt = row.CreatedAt.UTC()
	row.StartsOn = row.StartsOn.UTC()
	row.EndsOn = row.EndsOn.UTC()
	return wrap("create period", s.db.WithContext(ctx).Create(&row).Error)
}

// GetPeriod retrieves a payroll period by ID
func (s *Store) GetPeriod(ctx context.Context, id string) (*models.PayrollPeriod, error) {
	var p models.PayrollPeriod
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, wrap("get period", err)
	}
	return &p, nil
}

// ListPeriods returns all periods, earliest first
func (s *Store) ListPeriods(ctx context.Context) ([]models.PayrollPeriod, error) {
	var periods []models.PayrollPeriod
	if err := s.db.WithContext(ctx).Order("starts_on ASC").Find(&periods).Error; err != nil {
		return nil, wrap("list periods", err)
	}
	return periods, nil
}

// AppendAudit writes one audit event
func (s *Store) AppendAudit(ctx context.Context, ev models.AuditEvent) error {
	details := ""
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(b)
	}
	rec := auditRecord{
		ID:         ev.ID,
		Type:       ev.Type,
		SessionID:  ev.SessionID,
		UserID:     ev.UserID,
		Transition: ev.Transition,
		Timestamp:  ev.Timestamp.UnixNano(),
		Details:    details,
	}
	return wrap("append audit", s.db.WithContext(ctx).Create(&rec).Error)
}

// ListAudit returns audit events, optionally for a single session
func (s *Store) ListAudit(ctx context.Context, sessionID string) ([]models.AuditEvent, error) {
	var records []auditRecord

	q := s.db.WithContext(ctx)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, wrap("list audit", err)
	}

	events := make([]models.AuditEvent, 0, len(records))
	for _, rec := range records {
		ev := models.AuditEvent{
			ID:         rec.ID,
			Type:       rec.Type,
			SessionID:  rec.SessionID,
			UserID:     rec.UserID,
			Transition: rec.Transition,
			Timestamp:  time.Unix(0, rec.Timestamp).UTC(),
		}
		if rec.Details != "" {
			if err := json.Unmarshal([]byte(rec.Details), &ev.Details); err != nil {
				return nil, fmt.Errorf("decode audit details for %s: %w", rec.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
