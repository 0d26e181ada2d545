package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

// bookingEnv wires the full service graph over one mocked database
type bookingEnv struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
	svc  *BookingService
}

func newBookingEnv(t *testing.T) *bookingEnv {
	t.Helper()
	db, mock := newMockDB(t)
	logger := quietLogger()

	bookingRepo := database.NewBookingRepository(db, logger)
	flightRepo := database.NewFlightRepository(db)
	seatRepo := database.NewSeatRepository(db, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	loyaltyRepo := database.NewLoyaltyRepository(db, logger)
	paymentRepo := database.NewPaymentRepository(db, logger)

	seatInv := NewSeatInventoryService(seatRepo, flightRepo, nil, time.Minute, logger)
	ticketing := NewTicketingService(db, ticketRepo, bookingRepo, flightRepo, seatRepo, nil, logger)
	loyalty := NewLoyaltyService(db, loyaltyRepo, bookingRepo, paymentRepo, nil, 1, logger)
	svc := NewBookingService(db, bookingRepo, flightRepo, seatInv, ticketing, loyalty, nil, logger)

	return &bookingEnv{db: db, mock: mock, svc: svc}
}

var bookingCols = []string{
	"id", "reference", "user_id", "flight_instance_id", "status",
	"payment_state", "fare_basis_code", "cancel_reason", "created_at", "updated_at",
}

func bookingRow(b *models.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(
		b.ID, b.Reference, b.UserID, b.FlightInstanceID, b.Status,
		b.PaymentState, b.FareBasisCode, b.CancelReason, b.CreatedAt, b.UpdatedAt,
	)
}

func testBooking(status models.BookingStatus, paymentState models.BookingPaymentState) *models.Booking {
	now := time.Now()
	return &models.Booking{
		ID:               uuid.New(),
		Reference:        "AB3CD4",
		UserID:           uuid.New(),
		FlightInstanceID: uuid.New(),
		Status:           status,
		PaymentState:     paymentState,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func flightRow(id, aircraftID uuid.UUID, status models.FlightInstanceStatus, totalSeats int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "flight_number", "aircraft_id", "departure_time", "arrival_time", "status", "total_seats",
	}).AddRow(id, "SL401", aircraftID, now.Add(48*time.Hour), now.Add(52*time.Hour), status, totalSeats)
}

var ticketCols = []string{
	"id", "booking_id", "booking_passenger_id", "ticket_code", "status",
	"seat_id", "issued_at", "voided_at", "void_reason",
}

func TestCreateBookingValidation(t *testing.T) {
	env := newBookingEnv(t)

	t.Run("No Passengers", func(t *testing.T) {
		_, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
			FlightInstanceID: uuid.New(),
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Duplicate Seat Selection", func(t *testing.T) {
		seatID := uuid.New()
		_, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
			FlightInstanceID: uuid.New(),
			Passengers: []models.PassengerSelection{
				{PassengerID: uuid.New(), FullName: "Ann Lee", SeatID: &seatID},
				{PassengerID: uuid.New(), FullName: "Ben Lee", SeatID: &seatID},
			},
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestCreateBookingCapacity(t *testing.T) {
	env := newBookingEnv(t)

	flightID := uuid.New()
	aircraftID := uuid.New()

	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 2))
	// Capacity is checked under the flight row lock inside the transaction,
	// so a fully booked flight rolls back before any insert.
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances (.+) FOR UPDATE`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 2))
	env.mock.ExpectQuery(`SELECT COUNT(.+) FROM seat_assignments`).
		WithArgs(flightID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	env.mock.ExpectRollback()

	_, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
		FlightInstanceID: flightID,
		Passengers: []models.PassengerSelection{
			{PassengerID: uuid.New(), FullName: "Ann Lee"},
		},
	})
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateBookingWithoutSeatSelection(t *testing.T) {
	env := newBookingEnv(t)

	flightID := uuid.New()
	aircraftID := uuid.New()

	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 180))
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances (.+) FOR UPDATE`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 180))
	env.mock.ExpectQuery(`SELECT COUNT(.+) FROM seat_assignments`).
		WithArgs(flightID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	env.mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectExec(`INSERT INTO booking_passengers`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	booking, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
		FlightInstanceID: flightID,
		Passengers: []models.PassengerSelection{
			{PassengerID: uuid.New(), FullName: "Ann Lee"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, models.BookingPaymentUnpaid, booking.PaymentState)
	assert.Len(t, booking.Reference, 6)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateBookingRetriesReferenceCollision(t *testing.T) {
	env := newBookingEnv(t)

	flightID := uuid.New()
	aircraftID := uuid.New()

	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 180))

	// First attempt collides on the unique booking reference and rolls back.
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances (.+) FOR UPDATE`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 180))
	env.mock.ExpectQuery(`SELECT COUNT(.+) FROM seat_assignments`).
		WithArgs(flightID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	env.mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_reference_key"})
	env.mock.ExpectRollback()

	// Retry with a fresh reference succeeds.
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances (.+) FOR UPDATE`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, aircraftID, models.FlightInstanceScheduled, 180))
	env.mock.ExpectQuery(`SELECT COUNT(.+) FROM seat_assignments`).
		WithArgs(flightID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	env.mock.ExpectExec(`INSERT INTO bookings`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectExec(`INSERT INTO booking_passengers`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	env.mock.ExpectCommit()

	booking, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
		FlightInstanceID: flightID,
		Passengers: []models.PassengerSelection{
			{PassengerID: uuid.New(), FullName: "Ann Lee"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Len(t, booking.Reference, 6)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestCreateBookingRejectsNonScheduledFlight(t *testing.T) {
	env := newBookingEnv(t)

	flightID := uuid.New()
	env.mock.ExpectQuery(`SELECT (.+) FROM flight_instances`).
		WithArgs(flightID).
		WillReturnRows(flightRow(flightID, uuid.New(), models.FlightInstanceCancelled, 180))

	_, err := env.svc.CreateBooking(context.Background(), uuid.New(), &models.CreateBookingRequest{
		FlightInstanceID: flightID,
		Passengers: []models.PassengerSelection{
			{PassengerID: uuid.New(), FullName: "Ann Lee"},
		},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestApplyPaymentOutcome(t *testing.T) {
	t.Run("Confirms Pending Booking And Runs Side Effects", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)
		passengerID := uuid.New()

		// Confirm transaction
		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		// Ticket issuance side effect
		confirmedRow := *b
		confirmedRow.Status = models.BookingStatusConfirmed
		confirmedRow.PaymentState = models.BookingPaymentPaid
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(&confirmedRow))
		env.mock.ExpectQuery(`SELECT (.+) FROM booking_passengers`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "passenger_id", "full_name", "seat_id", "created_at",
			}).AddRow(passengerID, b.ID, uuid.New(), "Ann Lee", nil, time.Now()))
		env.mock.ExpectQuery(`SELECT (.+) FROM tickets`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows(ticketCols))
		env.mock.ExpectBegin()
		env.mock.ExpectExec(`INSERT INTO tickets`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.mock.ExpectCommit()
		env.mock.ExpectQuery(`SELECT (.+) FROM tickets`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(
				uuid.New(), b.ID, passengerID, "9990123456789", models.TicketStatusIssued,
				nil, time.Now(), nil, nil,
			))

		// Loyalty award side effect
		accountID := uuid.New()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(&confirmedRow))
		env.mock.ExpectQuery(`SELECT (.+) FROM frequent_flyer_accounts WHERE user_id`).
			WithArgs(b.UserID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "points_balance", "created_at", "updated_at",
			}).AddRow(accountID, b.UserID, 1200, time.Now(), time.Now()))
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

		booking, confirmed, err := env.svc.ApplyPaymentOutcome(context.Background(), b.ID, models.PaymentOutcomeSucceeded)
		require.NoError(t, err)
		assert.True(t, confirmed)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.Equal(t, models.BookingPaymentPaid, booking.PaymentState)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Terminal Booking Is Returned Unchanged", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)

		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectCommit()

		booking, confirmed, err := env.svc.ApplyPaymentOutcome(context.Background(), b.ID, models.PaymentOutcomeFailed)
		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.Equal(t, models.BookingPaymentPaid, booking.PaymentState)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Success Against Terminal Booking Reports No Confirmation", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)

		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectCommit()

		booking, confirmed, err := env.svc.ApplyPaymentOutcome(context.Background(), b.ID, models.PaymentOutcomeSucceeded)
		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Failed Outcome Keeps Booking Payable", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusPending, models.BookingPaymentUnpaid)

		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectCommit()

		booking, confirmed, err := env.svc.ApplyPaymentOutcome(context.Background(), b.ID, models.PaymentOutcomeFailed)
		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		assert.Equal(t, models.BookingPaymentFailed, booking.PaymentState)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestCancelBooking(t *testing.T) {
	t.Run("Missing Reason", func(t *testing.T) {
		env := newBookingEnv(t)
		_, err := env.svc.CancelBooking(context.Background(), uuid.New(), "")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Already Cancelled", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusCancelled, models.BookingPaymentUnpaid)

		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectRollback()

		_, err := env.svc.CancelBooking(context.Background(), b.ID, "traveller request")
		assert.ErrorIs(t, err, models.ErrAlreadyCancelled)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})

	t.Run("Releases Seats And Voids Tickets", func(t *testing.T) {
		env := newBookingEnv(t)
		b := testBooking(models.BookingStatusConfirmed, models.BookingPaymentPaid)

		env.mock.ExpectBegin()
		env.mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = (.+) FOR UPDATE`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))
		env.mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.mock.ExpectExec(`DELETE FROM seat_assignments`).
			WithArgs(b.ID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		env.mock.ExpectQuery(`UPDATE tickets`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
		env.mock.ExpectExec(`UPDATE boarding_passes`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		env.mock.ExpectCommit()

		booking, err := env.svc.CancelBooking(context.Background(), b.ID, "traveller request")
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		// A paid booking stays paid until the refund is confirmed.
		assert.Equal(t, models.BookingPaymentPaid, booking.PaymentState)
		assert.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestGenerateReference(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ref := generateReference()
		assert.Len(t, ref, 6)
		assert.Regexp(t, "^[A-HJ-NP-Z2-9]{6}$", ref)
		seen[ref] = true
	}
	// 32^6 combinations make collisions across 200 draws vanishingly rare
	assert.Greater(t, len(seen), 195)
}
