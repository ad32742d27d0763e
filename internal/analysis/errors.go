package analysis

import (
	"errors"
	"fmt"
)

// ErrFailed is the class of every analysis failure. A failed analysis leaves
// the record untouched and may be retried.
var ErrFailed = errors.New("analysis failed")

// Specific failures. Each satisfies errors.Is(err, ErrFailed).
var (
	ErrPayloadTooLarge   = fmt.Errorf("%w: payload too large", ErrFailed)
	ErrEmptyResponse     = fmt.Errorf("%w: no response from analysis service", ErrFailed)
	ErrMalformedResponse = fmt.Errorf("%w: malformed analysis response", ErrFailed)
	ErrTransport         = fmt.Errorf("%w: transport error", ErrFailed)
)

// ServiceError is a non-200 reply from the analysis service.
type ServiceError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("analysis service: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("analysis service: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap places ServiceError in the ErrFailed class.
func (e *ServiceError) Unwrap() error { return ErrFailed }
