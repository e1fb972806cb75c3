package payroll

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates missing or malformed import parameters.
	ErrInvalidRequest = errors.New("invalid import request")
	// ErrPartialFailure matches a *PartialFailureError with errors.Is.
	ErrPartialFailure = errors.New("import partially failed")
)

// Failure describes one session the importer could not materialize.
type Failure struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// PartialFailureError is returned alongside a Result when some sessions
// failed. Re-running the same import retries only those sessions.
type PartialFailureError struct {
	Attempted int
	Failures  []Failure
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payroll import: %d of %d sessions failed", len(e.Failures), e.Attempted)
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
