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

// LoyaltyRepository owns frequent flyer accounts, award markers and
// adjustment logs
type LoyaltyRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewLoyaltyRepository creates a new loyalty repository
func NewLoyaltyRepository(db *sqlx.DB, logger *logrus.Logger) *LoyaltyRepository {
	return &LoyaltyRepository{db: db, logger: logger}
}

// GetAccountByUserID loads the frequent flyer account of a user
func (r *LoyaltyRepository) GetAccountByUserID(ctx context.Context, userID uuid.UUID) (*models.FrequentFlyerAccount, error) {
	var acc models.FrequentFlyerAccount
	query := `
		SELECT id, user_id, points_balance, created_at, updated_at
		FROM frequent_flyer_accounts
		WHERE user_id = $1`

	if err := sqlx.GetContext(ctx, r.db, &acc, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: frequent flyer account for user %s", models.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get frequent flyer account: %w", err)
	}
	return &acc, nil
}

// GetAccountByID loads a frequent flyer account
func (r *LoyaltyRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.FrequentFlyerAccount, error) {
	var acc models.FrequentFlyerAccount
	query := `
		SELECT id, user_id, points_balance, created_at, updated_at
		FROM frequent_flyer_accounts
		WHERE id = $1`

	if err := sqlx.GetContext(ctx, r.db, &acc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: frequent flyer account %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get frequent flyer account: %w", err)
	}
	return &acc, nil
}

// InsertAward records the per-booking award marker. Returns false without
// error when the booking was already awarded; the unique constraint on
// booking_id is the idempotency guard.
func (r *LoyaltyRepository) InsertAward(ctx context.Context, tx *sqlx.Tx, award *models.LoyaltyAward) (bool, error) {
	if award.ID == uuid.Nil {
		award.ID = uuid.New()
	}
	award.CreatedAt = time.Now()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_awards (id, booking_id, account_id, points, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (booking_id) DO NOTHING`,
		award.ID, award.BookingID, award.AccountID, award.Points, award.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert loyalty award: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreditPoints applies a delta to an account balance inside the caller's
// transaction
func (r *LoyaltyRepository) CreditPoints(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, delta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE frequent_flyer_accounts
		SET points_balance = points_balance + $1, updated_at = NOW()
		WHERE id = $2`,
		delta, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: frequent flyer account %s", models.ErrNotFound, accountID)
	}
	return nil
}

// InsertAdjustment records a manual adjustment. Every call writes a new row;
// manual adjustments are distinct actions, never deduplicated.
func (r *LoyaltyRepository) InsertAdjustment(ctx context.Context, tx *sqlx.Tx, adj *models.LoyaltyAdjustment) error {
	if adj.ID == uuid.Nil {
		adj.ID = uuid.New()
	}
	adj.CreatedAt = time.Now()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_adjustments (id, account_id, delta, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		adj.ID, adj.AccountID, adj.Delta, adj.Reason, adj.ActorID, adj.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert loyalty adjustment: %w", err)
	}
	return nil
}
