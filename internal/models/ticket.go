package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle of an issued travel document
type TicketStatus string

const (
	TicketStatusIssued    TicketStatus = "issued"
	TicketStatusCheckedIn TicketStatus = "checked_in"
	TicketStatusBoarded   TicketStatus = "boarded"
	TicketStatusVoided    TicketStatus = "voided"
)

// Ticket is issued once per booking passenger after the booking is confirmed.
// Boarded is terminal and blocks voiding.
type Ticket struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	BookingID          uuid.UUID    `json:"booking_id" db:"booking_id"`
	BookingPassengerID uuid.UUID    `json:"booking_passenger_id" db:"booking_passenger_id"`
	TicketCode         string       `json:"ticket_code" db:"ticket_code"`
	Status             TicketStatus `json:"status" db:"status"`
	SeatID             *uuid.UUID   `json:"seat_id,omitempty" db:"seat_id"`
	IssuedAt           time.Time    `json:"issued_at" db:"issued_at"`
	VoidedAt           *time.Time   `json:"voided_at,omitempty" db:"voided_at"`
	VoidReason         *string      `json:"void_reason,omitempty" db:"void_reason"`
}

// BoardingPassStatus is independent of the ticket lifecycle
type BoardingPassStatus string

const (
	BoardingPassActive BoardingPassStatus = "active"
	BoardingPassVoided BoardingPassStatus = "voided"
)

// BoardingPass gates physical boarding; issued per ticket at check-in
type BoardingPass struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	TicketID         uuid.UUID          `json:"ticket_id" db:"ticket_id"`
	FlightInstanceID uuid.UUID          `json:"flight_instance_id" db:"flight_instance_id"`
	Status           BoardingPassStatus `json:"status" db:"status"`
	IssuedAt         time.Time          `json:"issued_at" db:"issued_at"`
	ScannedAt        *time.Time         `json:"scanned_at,omitempty" db:"scanned_at"`
}

// VoidTicketRequest carries the void reason for audit
type VoidTicketRequest struct {
	Reason string `json:"reason" binding:"required"`
}
