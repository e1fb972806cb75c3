package models

import "time"

// Audit event types
const (
	EventSessionStarted     = "session.started"
	EventSessionPaused      = "session.paused"
	EventSessionResumed     = "session.resumed"
	EventSessionStopped     = "session.stopped"
	EventSessionHeartbeat   = "session.heartbeat"
	EventSessionInterrupted = "session.interrupted"
	EventPayrollImported    = "payroll.imported"
)

// AuditEvent is one append-only record of a committed change
type AuditEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Transition string            `json:"transition,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
}

// TransitionLabel formats a from->to pair
func TransitionLabel(from, to Status) string {
	if from == "" {
		return string(to)
	}
	return string(from) + "->" + string(to)
}
