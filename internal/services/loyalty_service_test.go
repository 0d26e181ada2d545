package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

type loyaltyEnv struct {
	mock sqlmock.Sqlmock
	svc  *LoyaltyService
}

func newLoyaltyEnv(t *testing.T) *loyaltyEnv {
	t.Helper()
	db, mock := newMockDB(t)
	logger := quietLogger()

	loyaltyRepo := database.NewLoyaltyRepository(db, logger)
	bookingRepo := database.NewBookingRepository(db, logger)
	paymentRepo := database.NewPaymentRepository(db, logger)
	svc := NewLoyaltyService(db, loyaltyRepo, bookingRepo, paymentRepo, nil, 1, logger)

	return &loyaltyEnv{mock: mock, svc: svc}
}

func accountRow(accountID, userID uuid.UUID, balance int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "points_balance", "created_at", "updated_at",
	}).AddRow(accountID, userID, balance, time.Now(), time.Now())
}

func TestAwardPointsForBooking(t *testing.T) {
	t.Run("Unconfirmed Booking Is Rejected", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))

		err := env.svc.AwardPointsForBooking(context.Background(), b.ID)
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Unenrolled Traveller Is Skipped", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE user_id`).
			WithArgs(b.UserID).
			WillReturnError(sql.ErrNoRows)

		err := env.svc.AwardPointsForBooking(context.Background(), b.ID)
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Awards Once Per Booking", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)
		accountID := uuid.New()

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE user_id`).
			WithArgs(b.UserID).
			WillReturnRows(accountRow(accountID, b.UserID, 1200))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "gateway_intent_id", "amount_cents", "currency", "status", "created_at", "updated_at",
			}).AddRow(uuid.New(), b.ID, "txn_1", 45000, "USD", models.PaymentStatusSucceeded, time.Now(), time.Now()))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(`INSERT INTO loyalty_awards`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`UPDATE frequent_flyer_accounts`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		err := env.svc.AwardPointsForBooking(context.Background(), b.ID)
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Repeat Award Leaves Balance Untouched", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)
		accountID := uuid.New()

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE user_id`).
			WithArgs(b.UserID).
			WillReturnRows(accountRow(accountID, b.UserID, 1650))
		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE booking_id`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "gateway_intent_id", "amount_cents", "currency", "status", "created_at", "updated_at",
			}).AddRow(uuid.New(), b.ID, "txn_1", 45000, "USD", models.PaymentStatusSucceeded, time.Now(), time.Now()))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(`INSERT INTO loyalty_awards`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		// No balance update: the award marker already exists.
		env.mock.ExpectCommit()

		err := env.svc.AwardPointsForBooking(context.Background(), b.ID)
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestManualAdjust(t *testing.T) {
	t.Run("Zero Delta Is Rejected", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		_, err := env.svc.ManualAdjust(context.Background(), uuid.New(), &models.ManualAdjustRequest{
			AccountID: uuid.New(),
			Delta:     0,
			Reason:    "goodwill",
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Missing Reason Is Rejected", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		_, err := env.svc.ManualAdjust(context.Background(), uuid.New(), &models.ManualAdjustRequest{
			AccountID: uuid.New(),
			Delta:     500,
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Applies Credit And Returns Fresh Balance", func(t *testing.T) {
		env := newLoyaltyEnv(t)
		accountID := uuid.New()
		userID := uuid.New()

		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE id`).
			WithArgs(accountID).
			WillReturnRows(accountRow(accountID, userID, 1000))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(`INSERT INTO loyalty_adjustments`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`UPDATE frequent_flyer_accounts`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()
		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE id`).
			WithArgs(accountID).
			WillReturnRows(accountRow(accountID, userID, 1500))

		account, err := env.svc.ManualAdjust(context.Background(), uuid.New(), &models.ManualAdjustRequest{
			AccountID: accountID,
			Delta:     500,
			Reason:    "goodwill",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1500), account.PointsBalance)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}
