package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. The seat assignment and payment dedup paths both key off it.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// SeatRepository owns seats and per-flight seat assignment links
type SeatRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSeatRepository creates a new seat repository
func NewSeatRepository(db *sqlx.DB, logger *logrus.Logger) *SeatRepository {
	return &SeatRepository{db: db, logger: logger}
}

// GetSeats loads seats by id, verifying they all belong to the given aircraft
func (r *SeatRepository) GetSeats(ctx context.Context, aircraftID uuid.UUID, seatIDs []uuid.UUID) ([]models.Seat, error) {
	var seats []models.Seat
	query := `
		SELECT id, aircraft_id, cabin_class_id, seat_number
		FROM seats
		WHERE aircraft_id = $1 AND id = ANY($2)`

	if err := sqlx.SelectContext(ctx, r.db, &seats, query, aircraftID, pq.Array(seatIDs)); err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	return seats, nil
}

// GetByID loads a single seat
func (r *SeatRepository) GetByID(ctx context.Context, seatID uuid.UUID) (*models.Seat, error) {
	var seat models.Seat
	query := `SELECT id, aircraft_id, cabin_class_id, seat_number FROM seats WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &seat, query, seatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: seat %s", models.ErrNotFound, seatID)
		}
		return nil, fmt.Errorf("failed to load seat: %w", err)
	}
	return &seat, nil
}

// HeldSeatNumbers returns the seat numbers among seatIDs that are currently
// assigned on the flight instance. Used to name contested seats in conflicts.
// Runs on ext so reservation attempts can check within their own transaction.
func (r *SeatRepository) HeldSeatNumbers(ctx context.Context, ext sqlx.ExtContext, flightInstanceID uuid.UUID, seatIDs []uuid.UUID) ([]string, error) {
	var numbers []string
	query := `
		SELECT s.seat_number
		FROM seat_assignments sa
		JOIN seats s ON s.id = sa.seat_id
		WHERE sa.flight_instance_id = $1 AND sa.seat_id = ANY($2)
		ORDER BY s.seat_number`

	if err := sqlx.SelectContext(ctx, ext, &numbers, query, flightInstanceID, pq.Array(seatIDs)); err != nil {
		return nil, fmt.Errorf("failed to check held seats: %w", err)
	}
	return numbers, nil
}

// Assign inserts one seat assignment link inside the caller's transaction.
// The unique constraint on (flight_instance_id, seat_id) makes the loser of
// a concurrent race fail here with a unique violation.
func (r *SeatRepository) Assign(ctx context.Context, tx *sqlx.Tx, a *models.SeatAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()

	query := `
		INSERT INTO seat_assignments (id, flight_instance_id, seat_id, booking_id, booking_passenger_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := tx.ExecContext(ctx, query,
		a.ID, a.FlightInstanceID, a.SeatID, a.BookingID, a.BookingPassengerID, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to assign seat: %w", err)
	}
	return nil
}

// ReleaseByBooking deletes all seat assignment links for a booking.
// Idempotent: deleting zero rows is a successful no-op.
func (r *SeatRepository) ReleaseByBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM seat_assignments WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	released, _ := res.RowsAffected()
	return released, nil
}

// AvailableSeats returns seats of the aircraft assigned to the flight
// instance minus seats currently held by any non-cancelled booking on it
func (r *SeatRepository) AvailableSeats(ctx context.Context, flightInstanceID uuid.UUID, cabinClassID *uuid.UUID) ([]models.Seat, error) {
	var seats []models.Seat
	query := `
		SELECT s.id, s.aircraft_id, s.cabin_class_id, s.seat_number
		FROM seats s
		JOIN flight_instances fi ON fi.aircraft_id = s.aircraft_id
		WHERE fi.id = $1
		  AND ($2::uuid IS NULL OR s.cabin_class_id = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM seat_assignments sa
			WHERE sa.flight_instance_id = fi.id AND sa.seat_id = s.id
		  )
		ORDER BY s.seat_number`

	if err := sqlx.SelectContext(ctx, r.db, &seats, query, flightInstanceID, cabinClassID); err != nil {
		return nil, fmt.Errorf("failed to list available seats: %w", err)
	}
	return seats, nil
}

// CountAssigned returns the number of seats currently held on a flight
// instance. Runs on ext so capacity checks can run inside the reservation
// transaction.
func (r *SeatRepository) CountAssigned(ctx context.Context, ext sqlx.ExtContext, flightInstanceID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM seat_assignments WHERE flight_instance_id = $1`
	if err := sqlx.GetContext(ctx, ext, &count, query, flightInstanceID); err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return count, nil
}
