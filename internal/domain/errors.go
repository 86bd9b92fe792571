package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced report config, report or project does not exist.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// InvalidRangeError rejects a request before any computation starts.
type InvalidRangeError struct {
	Field  string
	Reason string
}

func (e InvalidRangeError) Error() string {
	if e.Field == "" {
		return "invalid range: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GenerationError is a report rendering or persistence failure.
type GenerationError struct {
	ReportID string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate report %s: %v", e.ReportID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// DeliveryError is a transport failure for an already completed report.
type DeliveryError struct {
	ReportID   string
	Recipients []string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver report %s to %s: %v", e.ReportID, strings.Join(e.Recipients, ","), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsInvalidRange reports whether err carries an InvalidRangeError.
func IsInvalidRange(err error) bool {
	var ir InvalidRangeError
	return errors.As(err, &ir)
}
