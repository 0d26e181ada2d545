package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
)

// PaymentAuditRepository appends to the immutable payment audit log
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db, logger: logger}
}

// Log writes one audit entry. Failures are logged loudly but callers decide
// whether the surrounding operation continues; money events must never be
// lost silently.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}

	query := `
		INSERT INTO payment_audits (
			id, payment_id, booking_id, gateway_transaction_id,
			event_type, event_source,
			expected_amount_cents, received_amount_cents,
			raw_body, error_message, is_duplicate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if _, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.PaymentID, audit.BookingID, audit.GatewayTransactionID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmountCents, audit.ReceivedAmountCents,
		audit.RawBody, audit.ErrorMessage, audit.IsDuplicate, audit.CreatedAt,
	); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"payment_id": audit.PaymentID,
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}
	return nil
}

// ListByPayment returns all audit entries for a payment, oldest first
func (r *PaymentAuditRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error) {
	var audits []models.PaymentAudit
	query := `
		SELECT id, payment_id, booking_id, gateway_transaction_id,
		       event_type, event_source,
		       expected_amount_cents, received_amount_cents,
		       raw_body, error_message, is_duplicate, created_at
		FROM payment_audits
		WHERE payment_id = $1
		ORDER BY created_at`

	if err := sqlx.SelectContext(ctx, r.db, &audits, query, paymentID); err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
