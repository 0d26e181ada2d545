package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

type paymentEnv struct {
	mock sqlmock.Sqlmock
	svc  *PaymentService
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	t.Helper()
	db, mock := newMockDB(t)
	logger := quietLogger()

	bookingRepo := database.NewBookingRepository(db, logger)
	flightRepo := database.NewFlightRepository(db)
	seatRepo := database.NewSeatRepository(db, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	loyaltyRepo := database.NewLoyaltyRepository(db, logger)
	paymentRepo := database.NewPaymentRepository(db, logger)
	fareRepo := database.NewFareRepository(db, logger)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	seatInv := NewSeatInventoryService(seatRepo, flightRepo, nil, time.Minute, logger)
	ticketing := NewTicketingService(db, ticketRepo, bookingRepo, flightRepo, seatRepo, nil, logger)
	loyalty := NewLoyaltyService(db, loyaltyRepo, bookingRepo, paymentRepo, nil, 1, logger)
	bookingSvc := NewBookingService(db, bookingRepo, flightRepo, seatInv, ticketing, loyalty, nil, logger)
	svc := NewPaymentService(db, paymentRepo, bookingRepo, fareRepo, auditRepo, testGateway(), bookingSvc, "USD", logger)

	return &paymentEnv{mock: mock, svc: svc}
}

func paymentRow(p *models.Payment) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "booking_id", "gateway_intent_id", "amount_cents", "currency", "status", "created_at", "updated_at",
	}).AddRow(p.ID, p.BookingID, p.GatewayIntentID, p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
}

func testPayment(status models.PaymentStatus) *models.Payment {
	now := time.Now()
	return &models.Payment{
		ID:              uuid.New(),
		BookingID:       uuid.New(),
		GatewayIntentID: "txn_abc123",
		AmountCents:     45000,
		Currency:        "USD",
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func webhookBody(transactionID, eventType string, amountCents int64) []byte {
	return []byte(fmt.Sprintf(`{"transactionId":%q,"eventType":%q,"amountCents":%d,"currency":"USD"}`,
		transactionID, eventType, amountCents))
}

func TestHandleGatewayEvent(t *testing.T) {
	t.Run("Invalid Signature Is Rejected And Audited", func(t *testing.T) {
		env := newPaymentEnv(t)
		body := webhookBody("txn_abc123", "payment.succeeded", 45000)

		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_other", body))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Unknown Transaction Is Acknowledged And Audited", func(t *testing.T) {
		env := newPaymentEnv(t)
		body := webhookBody("txn_unknown", "payment.succeeded", 45000)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs("txn_unknown").
			WillReturnError(sql.ErrNoRows)
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Delivery Is Acknowledged And Audited", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusSucceeded)
		body := webhookBody(p.GatewayIntentID, "payment.succeeded", p.AmountCents)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`UPDATE payments SET status`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Unhandled Event Type Is Acknowledged And Audited", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusPending)
		body := webhookBody(p.GatewayIntentID, "payment.disputed", p.AmountCents)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Second Capture For A Confirmed Booking Is Flagged", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusPending)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)
		b.ID = p.BookingID
		body := webhookBody(p.GatewayIntentID, "payment.succeeded", p.AmountCents)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`UPDATE payments SET status`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// Another payment already confirmed the booking, so this capture
		// applies no outcome and must be flagged for refund.
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(p.BookingID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectCommit()
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Amount Mismatch Leaves Booking Unconfirmed", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusPending)
		body := webhookBody(p.GatewayIntentID, "payment.succeeded", 99)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Failed Payment Keeps Booking Payable", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusPending)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)
		b.ID = p.BookingID
		body := webhookBody(p.GatewayIntentID, "payment.failed", p.AmountCents)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`UPDATE payments SET status`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(p.BookingID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Refund Completed Marks Payment And Booking Refunded", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusSucceeded)
		body := webhookBody(p.GatewayIntentID, "refund.completed", p.AmountCents)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE gateway_intent_id`).
			WithArgs(p.GatewayIntentID).
			WillReturnRows(paymentRow(p))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(`UPDATE payments SET status`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := env.svc.HandleGatewayEvent(context.Background(), body, signBody("whsec_test", body))
		assert.NoError(t, err)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestPaymentCreateIntent(t *testing.T) {
	t.Run("Confirmed Booking Is Not Payable", func(t *testing.T) {
		env := newPaymentEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))

		_, err := env.svc.CreateIntent(context.Background(), b.ID)
		assert.ErrorIs(t, err, models.ErrBookingNotPayable)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Charges Published Fare Per Passenger", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"intentId":"txn_new1","clientSecret":"cs_new1","status":"created"}`))
		}))
		defer server.Close()
		original := aeroPayEnvironmentURLs["sandbox"]
		aeroPayEnvironmentURLs["sandbox"] = server.URL
		defer func() { aeroPayEnvironmentURLs["sandbox"] = original }()

		env := newPaymentEnv(t)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectQuery(`SELECT (.+) FROM booking_passengers`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "passenger_id", "full_name", "seat_id", "created_at",
			}).
				AddRow(uuid.New(), b.ID, uuid.New(), "Ann Lee", nil, time.Now()).
				AddRow(uuid.New(), b.ID, uuid.New(), "Ben Lee", nil, time.Now()))
		env.mock.ExpectQuery(`SELECT amount_cents FROM fares`).
			WithArgs(b.FlightInstanceID, "Y").
			WillReturnRows(sqlmock.NewRows([]string{"amount_cents"}).AddRow(22500))
		env.mock.ExpectExec(`INSERT INTO payments`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		resp, err := env.svc.CreateIntent(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, "txn_new1", resp.IntentID)
		assert.Equal(t, int64(45000), resp.AmountCents)
		assert.Equal(t, "USD", resp.Currency)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Gateway Failure Leaves No Payment Row", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()
		original := aeroPayEnvironmentURLs["sandbox"]
		aeroPayEnvironmentURLs["sandbox"] = server.URL
		defer func() { aeroPayEnvironmentURLs["sandbox"] = original }()

		env := newPaymentEnv(t)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)

		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectQuery(`SELECT (.+) FROM booking_passengers`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "passenger_id", "full_name", "seat_id", "created_at",
			}).AddRow(uuid.New(), b.ID, uuid.New(), "Ann Lee", nil, time.Now()))
		env.mock.ExpectQuery(`SELECT amount_cents FROM fares`).
			WithArgs(b.FlightInstanceID, "Y").
			WillReturnRows(sqlmock.NewRows([]string{"amount_cents"}).AddRow(22500))
		env.mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		_, err := env.svc.CreateIntent(context.Background(), b.ID)
		assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestRefund(t *testing.T) {
	t.Run("Requires A Reason", func(t *testing.T) {
		env := newPaymentEnv(t)
		_, err := env.svc.Refund(context.Background(), uuid.New(), "")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Only Captured Payments Refund", func(t *testing.T) {
		env := newPaymentEnv(t)
		p := testPayment(models.PaymentStatusPending)

		env.mock.ExpectQuery(`SELECT (.+) FROM payments WHERE id`).
			WithArgs(p.ID).
			WillReturnRows(paymentRow(p))

		_, err := env.svc.Refund(context.Background(), p.ID, "schedule change")
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}
