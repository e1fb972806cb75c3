package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/balkashynov/worklog/internal/payroll"
	"github.com/balkashynov/worklog/internal/store"
	"github.com/balkashynov/worklog/internal/tracker"
)

// APIError is an RFC 7807 problem response.
type APIError struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// errorKind maps a service error onto a status and a stable problem type.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, tracker.ErrInvalidRequest), errors.Is(err, payroll.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid-request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, tracker.ErrInvalidTransition):
		return http.StatusConflict, "invalid-transition"
	case errors.Is(err, tracker.ErrConflict):
		return http.StatusConflict, "concurrent-conflict"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "store-unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func sendError(c *gin.Context, err error) {
	status, kind := errorKind(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, APIError{
		Type:     kind,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: c.Request.URL.Path,
	})
}

func sendBadRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIError{
		Type:     "invalid-request",
		Title:    http.StatusText(http.StatusBadRequest),
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request.URL.Path,
	})
}

// bindJSON decodes the request body into obj, rejecting fields obj does not
// declare at any depth, then applies the struct's binding tags.
func bindJSON(c *gin.Context, obj any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}
