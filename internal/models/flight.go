package models

import (
	"time"

	"github.com/google/uuid"
)

// FlightInstanceStatus is operational state owned by the ops subsystem.
// The booking core only reads it to refuse bookings on cancelled flights.
type FlightInstanceStatus string

const (
	FlightInstanceScheduled FlightInstanceStatus = "scheduled"
	FlightInstanceDeparted  FlightInstanceStatus = "departed"
	FlightInstanceCancelled FlightInstanceStatus = "cancelled"
)

// FlightInstance is a specific dated flight with a fixed aircraft
type FlightInstance struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	FlightNumber  string               `json:"flight_number" db:"flight_number"`
	AircraftID    uuid.UUID            `json:"aircraft_id" db:"aircraft_id"`
	DepartureTime time.Time            `json:"departure_time" db:"departure_time"`
	ArrivalTime   time.Time            `json:"arrival_time" db:"arrival_time"`
	Status        FlightInstanceStatus `json:"status" db:"status"`
	TotalSeats    int                  `json:"total_seats" db:"total_seats"`
}

// Seat belongs to one aircraft and one cabin class. A seat has no booking
// state of its own; occupancy is derived from seat assignment rows.
type Seat struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AircraftID   uuid.UUID `json:"aircraft_id" db:"aircraft_id"`
	CabinClassID uuid.UUID `json:"cabin_class_id" db:"cabin_class_id"`
	SeatNumber   string    `json:"seat_number" db:"seat_number"`
}

// SeatAssignment is the per-flight occupancy link. The unique constraint on
// (flight_instance_id, seat_id) is what makes concurrent double-booking lose.
// Rows are deleted when the owning booking releases its seats, so uniqueness
// is naturally scoped to non-cancelled bookings.
type SeatAssignment struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	FlightInstanceID   uuid.UUID `json:"flight_instance_id" db:"flight_instance_id"`
	SeatID             uuid.UUID `json:"seat_id" db:"seat_id"`
	BookingID          uuid.UUID `json:"booking_id" db:"booking_id"`
	BookingPassengerID uuid.UUID `json:"booking_passenger_id" db:"booking_passenger_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}
