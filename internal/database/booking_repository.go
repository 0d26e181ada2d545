package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
)

const bookingColumns = `id, reference, user_id, flight_instance_id, status, payment_state, fare_basis_code, cancel_reason, created_at, updated_at`

// BookingRepository owns bookings and their passenger links
type BookingRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *sqlx.DB, logger *logrus.Logger) *BookingRepository {
	return &BookingRepository{db: db, logger: logger}
}

// Create inserts a booking row inside the caller's transaction
func (r *BookingRepository) Create(ctx context.Context, tx *sqlx.Tx, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `
		INSERT INTO bookings (id, reference, user_id, flight_instance_id, status, payment_state, fare_basis_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := tx.ExecContext(ctx, query,
		b.ID, b.Reference, b.UserID, b.FlightInstanceID, b.Status, b.PaymentState, b.FareBasisCode, b.CreatedAt, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// CreatePassenger inserts a booking passenger link inside the caller's transaction
func (r *BookingRepository) CreatePassenger(ctx context.Context, tx *sqlx.Tx, p *models.BookingPassenger) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()

	query := `
		INSERT INTO booking_passengers (id, booking_id, passenger_id, full_name, seat_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := tx.ExecContext(ctx, query,
		p.ID, p.BookingID, p.PassengerID, p.FullName, p.SeatID, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create booking passenger: %w", err)
	}
	return nil
}

// GetByID loads a booking
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetByIDForUpdate loads a booking with a row lock inside the caller's
// transaction, serializing concurrent state transitions on the same booking
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, tx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &b, nil
}

// ListPassengers returns the passenger links of a booking
func (r *BookingRepository) ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]models.BookingPassenger, error) {
	var passengers []models.BookingPassenger
	query := `
		SELECT id, booking_id, passenger_id, full_name, seat_id, created_at
		FROM booking_passengers
		WHERE booking_id = $1
		ORDER BY created_at`

	if err := sqlx.SelectContext(ctx, r.db, &passengers, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list booking passengers: %w", err)
	}
	return passengers, nil
}

// ConfirmPaid transitions pending → confirmed/paid as a single compare-and-set.
// Returns false when the booking was not pending, which callers treat as an
// idempotent no-op.
func (r *BookingRepository) ConfirmPaid(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, payment_state = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.BookingStatusConfirmed, models.BookingPaymentPaid, id, models.BookingStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkPaymentFailed records a failed charge attempt on a still-pending booking
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_state = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.BookingPaymentFailed, id, models.BookingStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Cancel transitions a pending or confirmed booking to cancelled
func (r *BookingRepository) Cancel(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, reason string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, cancel_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)`,
		models.BookingStatusCancelled, reason, id, models.BookingStatusPending, models.BookingStatusConfirmed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPaymentState updates only the payment state, used when the gateway
// confirms a refund for an already-cancelled booking
func (r *BookingRepository) SetPaymentState(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, state models.BookingPaymentState) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET payment_state = $1, updated_at = NOW() WHERE id = $2`,
		state, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: booking %s", models.ErrNotFound, id)
	}
	return nil
}

// ListStalePending returns pending bookings created before the deadline.
// The reconciliation sweep cancels these to release their seats.
func (r *BookingRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`

	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, models.BookingStatusPending, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	return bookings, nil
}

// ListConfirmedPaidSince returns confirmed+paid bookings updated in the
// window, for the ensure-side-effects sweep
func (r *BookingRepository) ListConfirmedPaidSince(ctx context.Context, since time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND payment_state = $2 AND updated_at >= $3
		ORDER BY updated_at
		LIMIT $4`

	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, models.BookingStatusConfirmed, models.BookingPaymentPaid, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list confirmed paid bookings: %w", err)
	}
	return bookings, nil
}
