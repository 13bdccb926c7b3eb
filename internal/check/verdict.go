package check

import (
	"errors"
	"fmt"

	"github.com/dynwatch/dynwatch/internal/dynect"
)

// Status classifies a check outcome in monitoring convention.
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
	StatusUnknown  Status = "UNKNOWN"
)

// ExitCode maps a status to the conventional monitoring exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 3
	}
}

// Verdict is the classified outcome of a threshold comparison.
type Verdict struct {
	Status  Status
	Message string
	Value   float64
}

// Evaluate compares a p95 query rate against the thresholds. Ties resolve
// toward the more severe state.
func Evaluate(value, warning, critical float64) Verdict {
	switch {
	case value >= critical:
		return Verdict{
			Status:  StatusCritical,
			Value:   value,
			Message: fmt.Sprintf("p95 query rate %.2f qps >= critical threshold %.2f qps", value, critical),
		}
	case value >= warning:
		return Verdict{
			Status:  StatusWarning,
			Value:   value,
			Message: fmt.Sprintf("p95 query rate %.2f qps >= warning threshold %.2f qps", value, warning),
		}
	default:
		return Verdict{
			Status:  StatusOK,
			Value:   value,
			Message: fmt.Sprintf("p95 query rate %.2f qps below warning threshold %.2f qps", value, warning),
		}
	}
}

// StatusForError classifies a failed run. Failures of the remote API are
// CRITICAL; failures to interpret its answer or the configuration are
// UNKNOWN. This is the single translation point for error handling.
func StatusForError(err error) Status {
	var (
		transportErr *dynect.TransportError
		authErr      *dynect.AuthError
		badResponse  *dynect.BadResponseError
		exhausted    *dynect.RetryExhaustedError
	)
	switch {
	case errors.As(err, &transportErr),
		errors.As(err, &authErr),
		errors.As(err, &badResponse),
		errors.As(err, &exhausted):
		return StatusCritical
	default:
		return StatusUnknown
	}
}
