package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
)

// FareRepository resolves published fares. Pricing is read-only here; fares
// are managed by the commercial systems upstream.
type FareRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewFareRepository creates a new fare repository
func NewFareRepository(db *sqlx.DB, logger *logrus.Logger) *FareRepository {
	return &FareRepository{db: db, logger: logger}
}

// GetFareAmount returns the per-passenger fare in cents for a flight
// instance and fare basis code
func (r *FareRepository) GetFareAmount(ctx context.Context, flightInstanceID uuid.UUID, fareBasisCode string) (int64, error) {
	var amount int64
	query := `
		SELECT amount_cents
		FROM fares
		WHERE flight_instance_id = $1 AND fare_basis_code = $2`

	if err := sqlx.GetContext(ctx, r.db, &amount, query, flightInstanceID, fareBasisCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: fare %s on flight instance %s", models.ErrNotFound, fareBasisCode, flightInstanceID)
		}
		return 0, fmt.Errorf("failed to get fare: %w", err)
	}
	return amount, nil
}
