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

const paymentColumns = `id, booking_id, gateway_intent_id, amount_cents, currency, status, created_at, updated_at`

// PaymentRepository owns payment rows. Payment rows are created by the
// reconciliation engine only and their status moves strictly forward.
type PaymentRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger}
}

// Create inserts a payment row. The unique constraint on gateway_intent_id
// guarantees one local row per external intent.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO payments (id, booking_id, gateway_intent_id, amount_cents, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.BookingID, p.GatewayIntentID, p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID loads a payment row
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// GetByGatewayIntentID resolves the gateway's transaction identifier to the
// local payment row. This is the webhook deduplication key.
func (r *PaymentRepository) GetByGatewayIntentID(ctx context.Context, gatewayIntentID string) (*models.Payment, error) {
	var p models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_intent_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &p, query, gatewayIntentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment for gateway intent %s", models.ErrNotFound, gatewayIntentID)
		}
		return nil, fmt.Errorf("failed to get payment by gateway intent: %w", err)
	}
	return &p, nil
}

// TransitionStatus moves a payment from one status to another as a single
// compare-and-set. Returns false when the row was not in the expected status,
// which is how concurrent duplicate webhook deliveries lose quietly.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to models.PaymentStatus) (bool, error) {
	res, err := ext.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListByBooking returns all payment attempts for a booking, newest first
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
