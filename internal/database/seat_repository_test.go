package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/skylinkair/booking-backend/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Run("Unique Violation Code", func(t *testing.T) {
		err := &pq.Error{Code: "23505"}
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("Wrapped Unique Violation", func(t *testing.T) {
		err := fmt.Errorf("failed to assign seat: %w", &pq.Error{Code: "23505"})
		assert.True(t, IsUniqueViolation(err))
	})

	t.Run("Other Postgres Error", func(t *testing.T) {
		err := &pq.Error{Code: "23503"}
		assert.False(t, IsUniqueViolation(err))
	})

	t.Run("Non-Postgres Error", func(t *testing.T) {
		assert.False(t, IsUniqueViolation(fmt.Errorf("plain error")))
	})
}

func TestSeatAssign(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db, testLogger())

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO seat_assignments`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)
		assignment := &models.SeatAssignment{
			FlightInstanceID:   uuid.New(),
			SeatID:             uuid.New(),
			BookingID:          uuid.New(),
			BookingPassengerID: uuid.New(),
		}
		require.NoError(t, repo.Assign(context.Background(), tx, assignment))
		assert.NotEqual(t, uuid.Nil, assignment.ID)
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Concurrent Assignment Loses On Constraint", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO seat_assignments`).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		tx, err := db.Beginx()
		require.NoError(t, err)
		err = repo.Assign(context.Background(), tx, &models.SeatAssignment{
			FlightInstanceID: uuid.New(),
			SeatID:           uuid.New(),
			BookingID:        uuid.New(),
		})
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
		require.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReleaseByBooking(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db, testLogger())

	t.Run("Releases Held Seats", func(t *testing.T) {
		bookingID := uuid.New()
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM seat_assignments`).
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)
		released, err := repo.ReleaseByBooking(context.Background(), tx, bookingID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), released)
		require.NoError(t, tx.Commit())
	})

	t.Run("Idempotent When Nothing Held", func(t *testing.T) {
		bookingID := uuid.New()
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM seat_assignments`).
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		tx, err := db.Beginx()
		require.NoError(t, err)
		released, err := repo.ReleaseByBooking(context.Background(), tx, bookingID)
		require.NoError(t, err)
		assert.Zero(t, released)
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHeldSeatNumbers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db, testLogger())

	flightID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectQuery(`SELECT s.seat_number FROM seat_assignments`).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow("12A").AddRow("12B"))

	held, err := repo.HeldSeatNumbers(context.Background(), db, flightID, seatIDs)
	require.NoError(t, err)
	assert.Equal(t, []string{"12A", "12B"}, held)
	assert.NoError(t, mock.ExpectationsWereMet())
}
