package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookingPaymentState tracks money state on the booking aggregate.
// A cancelled booking may stay "paid" until the refund is confirmed
// by the gateway; that combination means "cancelled pending refund".
type BookingPaymentState string

const (
	BookingPaymentUnpaid   BookingPaymentState = "unpaid"
	BookingPaymentPaid     BookingPaymentState = "paid"
	BookingPaymentRefunded BookingPaymentState = "refunded"
	BookingPaymentFailed   BookingPaymentState = "failed"
)

// PaymentOutcome is the result a gateway reports for a charge attempt
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// Booking is the reservation aggregate linking a user, a flight instance,
// passengers and payment state
type Booking struct {
	ID               uuid.UUID           `json:"id" db:"id"`
	Reference        string              `json:"reference" db:"reference"`
	UserID           uuid.UUID           `json:"user_id" db:"user_id"`
	FlightInstanceID uuid.UUID           `json:"flight_instance_id" db:"flight_instance_id"`
	Status           BookingStatus       `json:"status" db:"status"`
	PaymentState     BookingPaymentState `json:"payment_state" db:"payment_state"`
	FareBasisCode    *string             `json:"fare_basis_code,omitempty" db:"fare_basis_code"`
	CancelReason     *string             `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the booking can no longer change lifecycle state
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusConfirmed || b.Status == BookingStatusCancelled
}

// BookingPassenger links a booking to a passenger, optionally with a seat
type BookingPassenger struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	BookingID   uuid.UUID  `json:"booking_id" db:"booking_id"`
	PassengerID uuid.UUID  `json:"passenger_id" db:"passenger_id"`
	FullName    string     `json:"full_name" db:"full_name"`
	SeatID      *uuid.UUID `json:"seat_id,omitempty" db:"seat_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// PassengerSelection is one passenger entry in a create-booking request
type PassengerSelection struct {
	PassengerID uuid.UUID  `json:"passenger_id" binding:"required"`
	FullName    string     `json:"full_name" binding:"required"`
	SeatID      *uuid.UUID `json:"seat_id,omitempty"`
}

// CreateBookingRequest is the intake payload for a new booking
type CreateBookingRequest struct {
	FlightInstanceID uuid.UUID            `json:"flight_instance_id" binding:"required"`
	Passengers       []PassengerSelection `json:"passengers" binding:"required,min=1"`
	FareBasisCode    *string              `json:"fare_basis_code,omitempty"`
}

// Validate checks the request shape before any state is touched
func (r *CreateBookingRequest) Validate() error {
	if r.FlightInstanceID == uuid.Nil {
		return fmt.Errorf("%w: flight_instance_id is required", ErrValidation)
	}
	if len(r.Passengers) == 0 {
		return fmt.Errorf("%w: at least one passenger is required", ErrValidation)
	}
	seen := make(map[uuid.UUID]bool, len(r.Passengers))
	for i, p := range r.Passengers {
		if p.FullName == "" {
			return fmt.Errorf("%w: passenger %d is missing full_name", ErrValidation, i)
		}
		if p.SeatID != nil {
			if seen[*p.SeatID] {
				return fmt.Errorf("%w: seat %s selected twice", ErrValidation, *p.SeatID)
			}
			seen[*p.SeatID] = true
		}
	}
	return nil
}

// CancelBookingRequest carries the caller-supplied cancellation reason
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}
