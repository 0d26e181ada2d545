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

const ticketColumns = `id, booking_id, booking_passenger_id, ticket_code, status, seat_id, issued_at, voided_at, void_reason`

// TicketRepository owns tickets and boarding passes
type TicketRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *sqlx.DB, logger *logrus.Logger) *TicketRepository {
	return &TicketRepository{db: db, logger: logger}
}

// Create inserts a ticket inside the caller's transaction. A partial unique
// index on booking_passenger_id for non-voided tickets backs the at-most-one
// live ticket per passenger invariant.
func (r *TicketRepository) Create(ctx context.Context, tx *sqlx.Tx, t *models.Ticket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.IssuedAt = time.Now()

	query := `
		INSERT INTO tickets (id, booking_id, booking_passenger_id, ticket_code, status, seat_id, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.ExecContext(ctx, query,
		t.ID, t.BookingID, t.BookingPassengerID, t.TicketCode, t.Status, t.SeatID, t.IssuedAt,
	); err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID loads a ticket
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var t models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: ticket %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

// ListByBooking returns all tickets of a booking
func (r *TicketRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = $1 ORDER BY issued_at`
	if err := sqlx.SelectContext(ctx, r.db, &tickets, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// Void transitions a ticket to voided while it is still issued or checked in.
// Returns false when the ticket was in neither state.
func (r *TicketRepository) Void(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, reason string) (bool, error) {
	res, err := ext.ExecContext(ctx, `
		UPDATE tickets
		SET status = $1, voided_at = NOW(), void_reason = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		models.TicketStatusVoided, reason, id, models.TicketStatusIssued, models.TicketStatusCheckedIn,
	)
	if err != nil {
		return false, fmt.Errorf("failed to void ticket: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// VoidAllForBooking voids every still-voidable ticket of a booking and
// returns the ids that were voided. Boarded tickets are left untouched.
func (r *TicketRepository) VoidAllForBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID, reason string) ([]uuid.UUID, error) {
	var voided []uuid.UUID
	query := `
		UPDATE tickets
		SET status = $1, voided_at = NOW(), void_reason = $2
		WHERE booking_id = $3 AND status IN ($4, $5)
		RETURNING id`

	rows, err := tx.QueryContext(ctx, query,
		models.TicketStatusVoided, reason, bookingID, models.TicketStatusIssued, models.TicketStatusCheckedIn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to void booking tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan voided ticket id: %w", err)
		}
		voided = append(voided, id)
	}
	return voided, rows.Err()
}

// TransitionStatus moves a ticket between lifecycle states as a
// compare-and-set
func (r *TicketRepository) TransitionStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to models.TicketStatus) (bool, error) {
	res, err := ext.ExecContext(ctx, `
		UPDATE tickets SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition ticket status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateBoardingPass inserts a boarding pass inside the caller's transaction
func (r *TicketRepository) CreateBoardingPass(ctx context.Context, tx *sqlx.Tx, bp *models.BoardingPass) error {
	if bp.ID == uuid.Nil {
		bp.ID = uuid.New()
	}
	bp.IssuedAt = time.Now()

	query := `
		INSERT INTO boarding_passes (id, ticket_id, flight_instance_id, status, issued_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.ExecContext(ctx, query,
		bp.ID, bp.TicketID, bp.FlightInstanceID, bp.Status, bp.IssuedAt,
	); err != nil {
		return fmt.Errorf("failed to create boarding pass: %w", err)
	}
	return nil
}

// GetActiveBoardingPass returns the active boarding pass for a ticket
func (r *TicketRepository) GetActiveBoardingPass(ctx context.Context, ticketID uuid.UUID) (*models.BoardingPass, error) {
	var bp models.BoardingPass
	query := `
		SELECT id, ticket_id, flight_instance_id, status, issued_at, scanned_at
		FROM boarding_passes
		WHERE ticket_id = $1 AND status = $2`

	if err := sqlx.GetContext(ctx, r.db, &bp, query, ticketID, models.BoardingPassActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: active boarding pass for ticket %s", models.ErrNotFound, ticketID)
		}
		return nil, fmt.Errorf("failed to get boarding pass: %w", err)
	}
	return &bp, nil
}

// MarkBoardingPassScanned stamps the scan time on an active pass
func (r *TicketRepository) MarkBoardingPassScanned(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (bool, error) {
	res, err := ext.ExecContext(ctx, `
		UPDATE boarding_passes SET scanned_at = NOW() WHERE id = $1 AND status = $2 AND scanned_at IS NULL`,
		id, models.BoardingPassActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark boarding pass scanned: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// VoidBoardingPassesForTicket voids any active pass of a ticket
func (r *TicketRepository) VoidBoardingPassesForTicket(ctx context.Context, ext sqlx.ExtContext, ticketID uuid.UUID) error {
	if _, err := ext.ExecContext(ctx, `
		UPDATE boarding_passes SET status = $1 WHERE ticket_id = $2 AND status = $3`,
		models.BoardingPassVoided, ticketID, models.BoardingPassActive,
	); err != nil {
		return fmt.Errorf("failed to void boarding passes: %w", err)
	}
	return nil
}
