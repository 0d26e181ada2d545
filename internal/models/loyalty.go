package models

import (
	"time"

	"github.com/google/uuid"
)

// FrequentFlyerAccount holds a points balance. The balance is mutated only
// through the loyalty ledger's award/adjust operations.
type FrequentFlyerAccount struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	PointsBalance int64     `json:"points_balance" db:"points_balance"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// LoyaltyAward is the per-booking award marker. The unique constraint on
// booking_id is what makes AwardPointsForBooking idempotent.
type LoyaltyAward struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`
	Points    int64     `json:"points" db:"points"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LoyaltyAdjustment records a manual credit/debit. Each call is a distinct
// action, so adjustments are deliberately not idempotent.
type LoyaltyAdjustment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`
	Delta     int64     `json:"delta" db:"delta"`
	Reason    string    `json:"reason" db:"reason"`
	ActorID   uuid.UUID `json:"actor_id" db:"actor_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ManualAdjustRequest is the operator payload for a manual adjustment
type ManualAdjustRequest struct {
	AccountID uuid.UUID `json:"account_id" binding:"required"`
	Delta     int64     `json:"delta" binding:"required"`
	Reason    string    `json:"reason" binding:"required"`
}
