// Package payroll turns approved, completed work sessions into payroll
// entries. Imports are idempotent: each session lands in a period at most once.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/balkashynov/worklog/internal/audit"
	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/rounding"
	"github.com/balkashynov/worklog/internal/store"
)

// CreatedBySystem marks entries written by the importer.
const CreatedBySystem = "system"

// Store is the subset of store.Store the importer needs.
type Store interface {
	FindEligibleForImport(ctx context.Context, userID string, r models.DateRange) ([]models.WorkSession, error)
	HasPayrollEntry(ctx context.Context, periodID, sessionID string) (bool, error)
	InsertPayrollEntryAndMarkConsumed(ctx context.Context, entry *models.PayrollEntry) error
}

// Labels are display names for a session's references.
type Labels struct {
	Project string
	Task    string
}

// LabelSource resolves display names for project and task references.
type LabelSource interface {
	Labels(ctx context.Context, s models.WorkSession) (Labels, error)
}

// refLabels uses the references themselves as labels.
type refLabels struct{}

func (refLabels) Labels(_ context.Context, s models.WorkSession) (Labels, error) {
	return Labels{Project: s.ProjectRef, Task: s.TaskRef}, nil
}

// Request selects what to import. From and To are calendar dates,
// both inclusive, interpreted in the importer's time zone.
type Request struct {
	PeriodID   string
	UserID     string
	HourlyRate float64
	From       *time.Time
	To         *time.Time
}

// Result reports one import run.
type Result struct {
	ImportedCount int                   `json:"imported"`
	Entries       []models.PayrollEntry `json:"entries"`
	// Skipped holds sessions that already had an entry in the period.
	Skipped  []string  `json:"skipped,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

type Importer struct {
	store    Store
	audit    audit.Sink
	labels   LabelSource
	location *time.Location
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

type Option func(*Importer)

func WithLabels(src LabelSource) Option {
	return func(i *Importer) { i.labels = src }
}

// WithLocation sets the zone used for date ranges and work dates.
func WithLocation(loc *time.Location) Option {
	return func(i *Importer) { i.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

func WithIDGenerator(newID func() string) Option {
	return func(i *Importer) { i.newID = newID }
}

func NewImporter(st Store, sink audit.Sink, opts ...Option) *Importer {
	if sink == nil {
		sink = audit.Discard
	}
	imp := &Importer{
		store:    st,
		audit:    sink,
		labels:   refLabels{},
		location: time.UTC,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Import materializes every eligible session for req.UserID into req.PeriodID.
// A failure on one session does not stop the batch; when any session fails,
// the partial Result is returned together with a *PartialFailureError.
func (imp *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	dateRange, err := imp.validate(req)
	if err != nil {
		return nil, err
	}

	sessions, err := imp.store.FindEligibleForImport(ctx, req.UserID, dateRange)
	if err != nil {
		return nil, fmt.Errorf("find eligible sessions: %w", err)
	}

	result := &Result{Entries: []models.PayrollEntry{}}
	var cancelErr error
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		entry, skipped, err := imp.importOne(ctx, req, s)
		switch {
		case err != nil:
			imp.logger.Warn("payroll import failed for session",
				"session_id", s.ID,
				"period_id", req.PeriodID,
				"error", err,
			)
			result.Failures = append(result.Failures, Failure{SessionID: s.ID, Reason: err.Error(), Err: err})
		case skipped:
			result.Skipped = append(result.Skipped, s.ID)
		default:
			result.Entries = append(result.Entries, *entry)
		}
	}
	result.ImportedCount = len(result.Entries)

	imp.record(ctx, req, result)

	if cancelErr != nil {
		return result, fmt.Errorf("payroll import interrupted: %w", cancelErr)
	}
	if len(result.Failures) > 0 {
		return result, &PartialFailureError{Attempted: len(sessions), Failures: result.Failures}
	}
	return result, nil
}

func (imp *Importer) validate(req Request) (models.DateRange, error) {
	var r models.DateRange
	if strings.TrimSpace(req.PeriodID) == "" {
		return r, fmt.Errorf("%w: period id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return r, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if req.HourlyRate <= 0 || math.IsNaN(req.HourlyRate) || math.IsInf(req.HourlyRate, 0) {
		return r, fmt.Errorf("%w: hourly rate must be positive, got %v", ErrInvalidRequest, req.HourlyRate)
	}
	if req.From != nil {
		r.From = imp.startOfDay(*req.From)
	}
	if req.To != nil {
		r.To = imp.startOfDay(*req.To).AddDate(0, 0, 1)
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, fmt.Errorf("%w: from date is after to date", ErrInvalidRequest)
	}
	return r, nil
}

// startOfDay returns local midnight of the calendar date t names.
func (imp *Importer) startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, imp.location).UTC()
}

func (imp *Importer) importOne(ctx context.Context, req Request, s models.WorkSession) (*models.PayrollEntry, bool, error) {
	exists, err := imp.store.HasPayrollEntry(ctx, req.PeriodID, s.ID)
	if err != nil {
		return nil, false, fmt.Errorf("check existing entry: %w", err)
	}
	if exists {
		return nil, true, nil
	}

	entry := imp.buildEntry(ctx, req, s)
	err = imp.store.InsertPayrollEntryAndMarkConsumed(ctx, entry)
	if errors.Is(err, store.ErrAlreadyImported) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert entry: %w", err)
	}
	return entry, false, nil
}

func (imp *Importer) buildEntry(ctx context.Context, req Request, s models.WorkSession) *models.PayrollEntry {
	hours := rounding.Hours(s.BillableDurationMinutes)
	sessionID := s.ID

	labels, err := imp.labels.Labels(ctx, s)
	if err != nil {
		imp.logger.Debug("label lookup failed, using references", "session_id", s.ID, "error", err)
		labels, _ = refLabels{}.Labels(ctx, s)
	}

	local := s.StartedAt.In(imp.location)
	return &models.PayrollEntry{
		ID:              imp.newID(),
		CreatedAt:       imp.now().UTC(),
		PeriodID:        req.PeriodID,
		UserID:          req.UserID,
		SourceSessionID: &sessionID,
		ProjectRef:      s.ProjectRef,
		OrderRef:        s.OrderRef,
		TaskRef:         s.TaskRef,
		WorkDate:        time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		HoursWorked:     hours,
		HourlyRate:      req.HourlyRate,
		Amount:          hours * req.HourlyRate,
		Category:        s.Category,
		Description:     Describe(labels, s.Activity),
		CreatedBy:       CreatedBySystem,
	}
}

// Describe builds an invoice line such as
// "Project: Apollo – Task: Login — fix redirect". Missing labels are left
// out; with no labels at all the activity is returned as is.
func Describe(labels Labels, activity string) string {
	var parts []string
	if p := strings.TrimSpace(labels.Project); p != "" {
		parts = append(parts, "Project: "+p)
	}
	if t := strings.TrimSpace(labels.Task); t != "" {
		parts = append(parts, "Task: "+t)
	}
	activity = strings.TrimSpace(activity)
	if len(parts) == 0 {
		return activity
	}
	desc := strings.Join(parts, " – ")
	if activity != "" {
		desc += " — " + activity
	}
	return desc
}

func (imp *Importer) record(ctx context.Context, req Request, result *Result) {
	ev := models.AuditEvent{
		Type:      models.EventPayrollImported,
		UserID:    req.UserID,
		Timestamp: imp.now().UTC(),
		Details: map[string]string{
			"period_id": req.PeriodID,
			"imported":  strconv.Itoa(result.ImportedCount),
			"skipped":   strconv.Itoa(len(result.Skipped)),
			"failed":    strconv.Itoa(len(result.Failures)),
		},
	}
	if err := imp.audit.Record(ctx, ev); err != nil {
		imp.logger.Warn("audit record failed", "event", ev.Type, "period_id", req.PeriodID, "error", err)
	}
}
