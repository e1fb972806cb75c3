package models

import (
	"time"
)

// Status is the lifecycle state of a work session
type Status string

const (
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further transitions may leave s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusInterrupted:
		return true
	}
	return false
}

const (
	DefaultCategory = "implementation"
	DefaultPriority = "medium"
)

// WorkSession represents one block of tracked work for a user
type WorkSession struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"` // bumped by every mutation, used for staleness

	UserID   string `gorm:"not null;index" json:"user_id"`
	Module   string `json:"module,omitempty"`
	Activity string `json:"activity,omitempty"`
	Category string `json:"category"`
	Priority string `json:"priority"`

	// Optional references, opaque to the tracker
	ProjectRef string `json:"project_ref,omitempty"`
	OrderRef   string `json:"order_ref,omitempty"`
	TaskRef    string `json:"task_ref,omitempty"`

	StartedAt               time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt                 *time.Time `json:"ended_at"`
	RawDurationMinutes      int        `json:"raw_duration_minutes"`
	BillableDurationMinutes int        `json:"billable_duration_minutes"`

	Status            Status `gorm:"not null;default:active" json:"status"`
	InterruptReason   string `json:"interrupt_reason,omitempty"`
	Approved          bool   `gorm:"default:false" json:"approved"`
	ConsumedByPayroll bool   `gorm:"default:false" json:"consumed_by_payroll"`
}

// Attributes are the caller-supplied classification fields for a new session
type Attributes struct {
	Module     string `json:"module"`
	Activity   string `json:"activity"`
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	ProjectRef string `json:"project_ref"`
	OrderRef   string `json:"order_ref"`
	TaskRef    string `json:"task_ref"`
}

// NewWorkSession builds an active session for userID starting at now
func NewWorkSession(id, userID string, attrs Attributes, now time.Time) *WorkSession {
	category := attrs.Category
	if category == "" {
		category = DefaultCategory
	}
	priority := attrs.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	return &WorkSession{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		UserID:     userID,
		Module:     attrs.Module,
		Activity:   attrs.Activity,
		Category:   category,
		Priority:   priority,
		ProjectRef: attrs.ProjectRef,
		OrderRef:   attrs.OrderRef,
		TaskRef:    attrs.TaskRef,
		StartedAt:  now,
		Status:     StatusActive,
	}
}

// SessionUpdate carries the fields a status transition may set.
// Nil pointers leave the stored value untouched.
type SessionUpdate struct {
	UpdatedAt               time.Time
	EndedAt                 *time.Time
	RawDurationMinutes      *int
	BillableDurationMinutes *int
	InterruptReason         *string
}

// Apply copies the update onto s
func (u SessionUpdate) Apply(s *WorkSession, next Status) {
	s.Status = next
	s.UpdatedAt = u.UpdatedAt
	if u.EndedAt != nil {
		t := *u.EndedAt
		s.EndedAt = &t
	}
	if u.RawDurationMinutes != nil {
		s.RawDurationMinutes = *u.RawDurationMinutes
	}
	if u.BillableDurationMinutes != nil {
		s.BillableDurationMinutes = *u.BillableDurationMinutes
	}
	if u.InterruptReason != nil {
		s.InterruptReason = *u.InterruptReason
	}
}

// Elapsed returns how long the session has run as of now
func (s *WorkSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// SessionFilter narrows ListSessions results
type SessionFilter struct {
	UserID string
	Status Status
	Range  DateRange
	Limit  int
}

// DateRange is a half-open [From, To) interval; zero bounds are open
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
