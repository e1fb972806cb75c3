package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/balkashynov/worklog/internal/models"
	"github.com/balkashynov/worklog/internal/payroll"
	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/tracker"
)

// Controller serves the session and payroll endpoints.
type Controller struct {
	Tracker  *tracker.Manager
	Importer *payroll.Importer
	Store    store.Store
	Logger   *slog.Logger
}

type StartSessionRequest struct {
	UserID     string            `json:"user_id" binding:"required"`
	Attributes models.Attributes `json:"attributes"`
}

type InterruptRequest struct {
	Reason string `json:"reason"`
}

type ApproveRequest struct {
	Approved *bool `json:"approved"`
}

type ImportRequest struct {
	PeriodID   string  `json:"period_id" binding:"required"`
	UserID     string  `json:"user_id" binding:"required"`
	HourlyRate float64 `json:"hourly_rate" binding:"required"`
	FromDate   string  `json:"from_date"`
	ToDate     string  `json:"to_date"`
}

// ImportResponse carries the batch result; Error is set on partial failure.
type ImportResponse struct {
	*payroll.Result
	Error string `json:"error,omitempty"`
}

func (ctl *Controller) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := bindJSON(c, &req); err != nil {
		sendBadRequest(c, "Invalid JSON format: "+err.Error())
		return
	}

	existing, err := ctl.Tracker.Current(c.Request.Context(), req.UserID)
	if err != nil && !errors.Is(err, tracker.ErrNotFound) {
		sendError(c, err)
		return
	}

	s, err := ctl.Tracker.Start(c.Request.Context(), req.UserID, req.Attributes)
	if err != nil {
		sendError(c, err)
		return
	}
	status := http.StatusCreated
	if existing != nil && existing.ID == s.ID {
		status = http.StatusOK
	}
	c.JSON(status, s)
}

func (ctl *Controller) GetSession(c *gin.Context) {
	s, err := ctl.Tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (ctl *Controller) PauseSession(c *gin.Context) {
	s, err := ctl.Tracker.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (ctl *Controller) ResumeSession(c *gin.Context) {
	s, err := ctl.Tracker.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (ctl *Controller) StopSession(c *gin.Context) {
	s, err := ctl.Tracker.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (ctl *Controller) Heartbeat(c *gin.Context) {
	if err := ctl.Tracker.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
		sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller) InterruptSession(c *gin.Context) {
	var req InterruptRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			sendBadRequest(c, "Invalid JSON format: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "interrupted via api"
	}
	s, err := ctl.Tracker.Interrupt(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ApproveSession sets the approval flag; an empty body approves.
func (ctl *Controller) ApproveSession(c *gin.Context) {
	var req ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			sendBadRequest(c, "Invalid JSON format: "+err.Error())
			return
		}
	}
	approved := req.Approved == nil || *req.Approved
	s, err := ctl.Store.SetApproved(c.Request.Context(), c.Param("id"), approved)
	if err != nil {
		sendError(c, err)
		return
	}
	ctl.Logger.Info("session approval changed", "session_id", s.ID, "approved", approved)
	c.JSON(http.StatusOK, s)
}

func (ctl *Controller) ImportPayroll(c *gin.Context) {
	var req ImportRequest
	if err := bindJSON(c, &req); err != nil {
		sendBadRequest(c, "Invalid JSON format: "+err.Error())
		return
	}
	from, err := parseDate(req.FromDate)
	if err != nil {
		sendBadRequest(c, "from_date: "+err.Error())
		return
	}
	to, err := parseDate(req.ToDate)
	if err != nil {
		sendBadRequest(c, "to_date: "+err.Error())
		return
	}

	res, err := ctl.Importer.Import(c.Request.Context(), payroll.Request{
		PeriodID:   req.PeriodID,
		UserID:     req.UserID,
		HourlyRate: req.HourlyRate,
		From:       from,
		To:         to,
	})
	switch {
	case errors.Is(err, payroll.ErrPartialFailure):
		c.JSON(http.StatusMultiStatus, ImportResponse{Result: res, Error: err.Error()})
	case err != nil:
		sendError(c, err)
	default:
		c.JSON(http.StatusCreated, ImportResponse{Result: res})
	}
}

func (ctl *Controller) ListEntries(c *gin.Context) {
	periodID := c.Query("period_id")
	if periodID == "" {
		sendBadRequest(c, "period_id is required")
		return
	}
	entries, err := ctl.Store.ListPayrollEntries(c.Request.Context(), models.EntryFilter{
		PeriodID: periodID,
		UserID:   c.Query("user_id"),
	})
	if err != nil {
		sendError(c, err)
		return
	}
	if entries == nil {
		entries = []models.PayrollEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// SessionAudit returns the audit trail of one session, oldest first.
func (ctl *Controller) SessionAudit(c *gin.Context) {
	s, err := ctl.Tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	events, err := ctl.Store.ListAudit(c.Request.Context(), s.ID)
	if err != nil {
		sendError(c, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (ctl *Controller) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseDate reads an optional YYYY-MM-DD value.
func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
