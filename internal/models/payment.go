package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the state of a single gateway charge attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsTerminal reports whether a payment row can no longer change status
// except for succeeded → refunded
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// Payment is one external-gateway transaction attempt tied to a booking.
// A booking may have several rows (retries) but at most one ever reaches
// succeeded un-refunded. Rows are created by the reconciliation engine and
// never mutated by any other component.
type Payment struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	BookingID       uuid.UUID     `json:"booking_id" db:"booking_id"`
	GatewayIntentID string        `json:"gateway_intent_id" db:"gateway_intent_id"`
	AmountCents     int64         `json:"amount_cents" db:"amount_cents"`
	Currency        string        `json:"currency" db:"currency"`
	Status          PaymentStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateIntentRequest is the client payload for starting a payment
type CreateIntentRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
}

// CreateIntentResponse returns what the client needs to complete payment
// externally
type CreateIntentResponse struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
}

// RefundRequest carries the operator-supplied refund reason
type RefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}
