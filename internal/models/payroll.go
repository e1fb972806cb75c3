package models

import (
	"time"
)

// PayrollPeriod groups payroll entries, e.g. one month
type PayrollPeriod struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Label    string    `gorm:"not null" json:"label"`
	StartsOn time.Time `json:"starts_on"`
	EndsOn   time.Time `json:"ends_on"`
}

// PayrollEntry is one billable line inside a period.
// (PeriodID, SourceSessionID) is unique, which keeps imports idempotent.
type PayrollEntry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	PeriodID        string  `gorm:"not null;uniqueIndex:idx_payroll_period_session;index" json:"period_id"`
	UserID          string  `gorm:"not null;index" json:"user_id"`
	SourceSessionID *string `gorm:"uniqueIndex:idx_payroll_period_session" json:"source_session_id"` // nil for manual entries

	ProjectRef string `json:"project_ref,omitempty"`
	OrderRef   string `json:"order_ref,omitempty"`
	TaskRef    string `json:"task_ref,omitempty"`

	WorkDate    time.Time `json:"work_date"`
	HoursWorked float64   `json:"hours_worked"`
	HourlyRate  float64   `json:"hourly_rate"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
}

// EntryFilter narrows ListPayrollEntries results
type EntryFilter struct {
	PeriodID string
	UserID   string
}
