package service

import (
	"errors"
	"strings"

	"github.com/iliyamo/ticket-booking/internal/repository"
)

var (
	// ErrEventNotFound is the repository sentinel, re-exported so callers of
	// this package need not import repository.
	ErrEventNotFound = repository.ErrEventNotFound

	ErrEmptySeatList     = errors.New("at least one seat is required")
	ErrInvalidDimensions = errors.New("rows and cols must be positive")
	ErrInvalidEvent      = errors.New("invalid event")

	// ErrDuplicateBooking means two tickets reference one seat.  Storage
	// constraints make it impossible, so seeing it is an internal failure.
	ErrDuplicateBooking = errors.New("seat booked more than once")
)

// ConflictError lists the requested seat labels that could not be booked:
// unknown labels, seats already sold and labels repeated in the request.
// Nothing from the request was booked.
type ConflictError struct {
	Labels []string
}

func (e *ConflictError) Error() string {
	return "seats unavailable: " + strings.Join(e.Labels, ", ")
}
