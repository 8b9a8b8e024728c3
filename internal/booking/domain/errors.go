package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrVehicleNotFound indicates the referenced vehicle does not exist.
var ErrVehicleNotFound = errors.New("vehicle not found")

// ErrBookingNotFound indicates the referenced booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrScopesUnsupported signals that the store cannot provide transactional
// scopes. It is a capability failure, not a business failure: the reservation
// engine converts it into the non-atomic fallback path and it is never
// surfaced to callers.
var ErrScopesUnsupported = errors.New("store does not support transactional scopes")

// ValidationError reports malformed input. It is always raised before any
// store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports that the requested window overlaps an existing
// booking for the vehicle. It carries only the vehicle identity and the
// requested window, never the competing customer's details.
type ConflictError struct {
	VehicleID uuid.UUID
	Window    Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vehicle %s already booked for an overlapping window [%s, %s)",
		e.VehicleID, e.Window.Start.Format("2006-01-02T15:04:05Z07:00"), e.Window.End.Format("2006-01-02T15:04:05Z07:00"))
}
