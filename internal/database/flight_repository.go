package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skylinkair/booking-backend/internal/models"
)

// FlightRepository provides read access to flight instance reference data.
// Flight instances are owned by the operations subsystem; the booking core
// only needs identity, status and capacity.
type FlightRepository struct {
	db *sqlx.DB
}

// NewFlightRepository creates a new flight repository
func NewFlightRepository(db *sqlx.DB) *FlightRepository {
	return &FlightRepository{db: db}
}

// GetByID loads a flight instance with its aircraft's seat count
func (r *FlightRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FlightInstance, error) {
	var fi models.FlightInstance
	query := `
		SELECT fi.id, fi.flight_number, fi.aircraft_id, fi.departure_time, fi.arrival_time, fi.status,
		       (SELECT COUNT(*) FROM seats s WHERE s.aircraft_id = fi.aircraft_id) AS total_seats
		FROM flight_instances fi
		WHERE fi.id = $1`

	if err := sqlx.GetContext(ctx, r.db, &fi, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: flight instance %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get flight instance: %w", err)
	}
	return &fi, nil
}

// GetByIDForUpdate loads a flight instance with its row locked inside the
// caller's transaction. Reservation transactions take this lock so capacity
// checks against concurrent bookings serialize.
func (r *FlightRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.FlightInstance, error) {
	var fi models.FlightInstance
	query := `
		SELECT fi.id, fi.flight_number, fi.aircraft_id, fi.departure_time, fi.arrival_time, fi.status,
		       (SELECT COUNT(*) FROM seats s WHERE s.aircraft_id = fi.aircraft_id) AS total_seats
		FROM flight_instances fi
		WHERE fi.id = $1
		FOR UPDATE OF fi`

	if err := sqlx.GetContext(ctx, tx, &fi, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: flight instance %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock flight instance: %w", err)
	}
	return &fi, nil
}
