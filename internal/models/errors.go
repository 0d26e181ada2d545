package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the booking core. Handlers map these to HTTP status
// codes; services wrap them with context via fmt.Errorf and %w.
var (
	// ErrValidation covers malformed input. Nothing is mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers booking/payment/ticket/flight ids that do not resolve
	ErrNotFound = errors.New("not found")

	// ErrSeatConflict means at least one requested seat is already held by a
	// non-cancelled booking on the same flight instance
	ErrSeatConflict = errors.New("seat conflict")

	// ErrCapacityExceeded means the flight has fewer free seats than requested
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrAlreadyCancelled means the booking is already in the cancelled state
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrBookingNotPayable means the booking is not pending+unpaid
	ErrBookingNotPayable = errors.New("booking not payable")

	// ErrCannotVoidBoardedTicket means the ticket has already been used to board
	ErrCannotVoidBoardedTicket = errors.New("cannot void boarded ticket")

	// ErrInvalidSignature means a webhook failed authenticity verification.
	// Checked before any state mutation.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrGatewayUnavailable means the external payment gateway call itself
	// failed or timed out
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// SeatConflictError names the contested seats so the client can re-select.
// Unwraps to ErrSeatConflict.
type SeatConflictError struct {
	SeatNumbers []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seat conflict: %s already held", strings.Join(e.SeatNumbers, ", "))
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatConflict }
