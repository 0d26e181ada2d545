package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType classifies entries in the immutable payment audit log
type PaymentEventType string

const (
	PaymentEventIntentCreated    PaymentEventType = "intent_created"
	PaymentEventIntentFailed     PaymentEventType = "intent_failed"
	PaymentEventWebhookReceived  PaymentEventType = "webhook_received"
	PaymentEventWebhookRejected  PaymentEventType = "webhook_rejected"
	PaymentEventWebhookDuplicate PaymentEventType = "webhook_duplicate"
	PaymentEventWebhookOrphan    PaymentEventType = "webhook_orphan"
	PaymentEventWebhookIgnored   PaymentEventType = "webhook_ignored"
	PaymentEventAmountMismatch   PaymentEventType = "amount_mismatch"
	PaymentEventSurplusCapture   PaymentEventType = "surplus_capture"
	PaymentEventRefundInitiated  PaymentEventType = "refund_initiated"
	PaymentEventRefundCompleted  PaymentEventType = "refund_completed"
)

// PaymentEventSource identifies where an audit event originated
type PaymentEventSource string

const (
	PaymentSourceBackend PaymentEventSource = "backend"
	PaymentSourceWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceSweep   PaymentEventSource = "reconciliation_sweep"
)

// PaymentAudit is an append-only record of every gateway interaction.
// Rows are written even for discarded events so operators can trace
// duplicate and orphaned webhook deliveries.
type PaymentAudit struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	PaymentID            *uuid.UUID         `json:"payment_id,omitempty" db:"payment_id"`
	BookingID            *uuid.UUID         `json:"booking_id,omitempty" db:"booking_id"`
	GatewayTransactionID *string            `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	EventType            PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource          PaymentEventSource `json:"event_source" db:"event_source"`
	ExpectedAmountCents  *int64             `json:"expected_amount_cents,omitempty" db:"expected_amount_cents"`
	ReceivedAmountCents  *int64             `json:"received_amount_cents,omitempty" db:"received_amount_cents"`
	RawBody              *string            `json:"raw_body,omitempty" db:"raw_body"`
	ErrorMessage         *string            `json:"error_message,omitempty" db:"error_message"`
	IsDuplicate          bool               `json:"is_duplicate" db:"is_duplicate"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates an audit entry with the required fields set
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// WithPayment attaches the local payment row
func (a *PaymentAudit) WithPayment(p *Payment) *PaymentAudit {
	a.PaymentID = &p.ID
	a.BookingID = &p.BookingID
	return a
}

// WithTransaction attaches the gateway transaction identifier
func (a *PaymentAudit) WithTransaction(txnID string) *PaymentAudit {
	a.GatewayTransactionID = &txnID
	return a
}

// WithError attaches a processing error message
func (a *PaymentAudit) WithError(err error) *PaymentAudit {
	msg := err.Error()
	a.ErrorMessage = &msg
	return a
}
