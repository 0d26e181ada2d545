package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/events"
	"github.com/skylinkair/booking-backend/internal/models"
)

// referenceAlphabet excludes ambiguous characters, PNR style
const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// BookingService owns the booking lifecycle: Pending → Confirmed or
// Cancelled, never backwards. It is the only component that transitions
// booking status.
type BookingService struct {
	db          *sqlx.DB
	bookingRepo *database.BookingRepository
	flightRepo  *database.FlightRepository
	seatInv     *SeatInventoryService
	ticketing   *TicketingService
	loyalty     *LoyaltyService
	producer    *events.Producer
	logger      *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	db *sqlx.DB,
	bookingRepo *database.BookingRepository,
	flightRepo *database.FlightRepository,
	seatInv *SeatInventoryService,
	ticketing *TicketingService,
	loyalty *LoyaltyService,
	producer *events.Producer,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		db:          db,
		bookingRepo: bookingRepo,
		flightRepo:  flightRepo,
		seatInv:     seatInv,
		ticketing:   ticketing,
		loyalty:     loyalty,
		producer:    producer,
		logger:      logger,
	}
}

// CreateBooking validates the flight and capacity, reserves the selected
// seats and persists a pending, unpaid booking — all in one transaction, so
// no booking row survives a failed seat reservation.
func (s *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	flight, err := s.flightRepo.GetByID(ctx, req.FlightInstanceID)
	if err != nil {
		return nil, err
	}
	if flight.Status != models.FlightInstanceScheduled {
		return nil, fmt.Errorf("%w: flight %s is not open for booking", models.ErrValidation, flight.FlightNumber)
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		Reference:        generateReference(),
		UserID:           userID,
		FlightInstanceID: flight.ID,
		Status:           models.BookingStatusPending,
		PaymentState:     models.BookingPaymentUnpaid,
		FareBasisCode:    req.FareBasisCode,
	}

	passengers := make([]models.BookingPassenger, len(req.Passengers))
	seatPairs := make(map[uuid.UUID]uuid.UUID)
	for i, sel := range req.Passengers {
		passengers[i] = models.BookingPassenger{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			PassengerID: sel.PassengerID,
			FullName:    sel.FullName,
			SeatID:      sel.SeatID,
		}
		if sel.SeatID != nil {
			seatPairs[passengers[i].ID] = *sel.SeatID
		}
	}

	reservations, err := s.seatInv.ValidateSeatSelection(ctx, flight.AircraftID, seatPairs)
	if err != nil {
		return nil, err
	}

	// Advisory holds shortcut most races before the transaction opens; the
	// unique constraint inside it remains authoritative.
	contested, err := s.seatInv.AcquireHolds(ctx, flight.ID, reservations)
	if err != nil {
		return nil, err
	}
	if len(contested) > 0 {
		return nil, &models.SeatConflictError{SeatNumbers: contested}
	}
	defer s.seatInv.ReleaseHolds(ctx, flight.ID, reservations)

	persist := func(tx *sqlx.Tx) error {
		// The flight row lock serializes concurrent capacity checks; without
		// it two seatless bookings could both pass and oversell the aircraft.
		locked, err := s.flightRepo.GetByIDForUpdate(ctx, tx, flight.ID)
		if err != nil {
			return err
		}
		assigned, err := s.seatInv.AssignedCount(ctx, tx, flight.ID)
		if err != nil {
			return err
		}
		if assigned+len(passengers) > locked.TotalSeats {
			return fmt.Errorf("%w: flight %s has %d free seats, %d requested",
				models.ErrCapacityExceeded, flight.FlightNumber, locked.TotalSeats-assigned, len(passengers))
		}
		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return err
		}
		for i := range passengers {
			if err := s.bookingRepo.CreatePassenger(ctx, tx, &passengers[i]); err != nil {
				return err
			}
		}
		return s.seatInv.ReserveSeats(ctx, tx, flight.ID, booking.ID, reservations)
	}

	// A reference collision aborts the whole transaction, so retry it with a
	// fresh code. Seat races surface as SeatConflictError, never as a raw
	// unique violation, and are not retried.
	for attempt := 0; ; attempt++ {
		err = database.RunInTx(ctx, s.db, persist)
		if err == nil || !database.IsUniqueViolation(err) || attempt >= 2 {
			break
		}
		booking.Reference = generateReference()
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference,
		"flight":     flight.FlightNumber,
		"passengers": len(passengers),
	}).Info("Booking created")

	s.publish(ctx, events.EventBookingCreated, booking)
	return booking, nil
}

// ApplyPaymentOutcome is the only path from pending to confirmed. It is
// monotonic and idempotent: a terminal booking is returned unchanged. The
// bool reports whether this call performed the pending to confirmed
// transition, so a caller holding a captured payment can tell an applied
// outcome from a late one. On success, ticket issuance and point award run
// as independently retryable side effects; their failure never reverts the
// payment or the booking.
func (s *BookingService) ApplyPaymentOutcome(ctx context.Context, bookingID uuid.UUID, outcome models.PaymentOutcome) (*models.Booking, bool, error) {
	var booking *models.Booking
	confirmed := false

	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		b, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		booking = b

		if b.IsTerminal() {
			// Duplicate or late delivery; current state wins.
			return nil
		}

		switch outcome {
		case models.PaymentOutcomeSucceeded:
			ok, err := s.bookingRepo.ConfirmPaid(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			if ok {
				b.Status = models.BookingStatusConfirmed
				b.PaymentState = models.BookingPaymentPaid
				confirmed = true
			}
		case models.PaymentOutcomeFailed:
			if _, err := s.bookingRepo.MarkPaymentFailed(ctx, tx, b.ID); err != nil {
				return err
			}
			b.PaymentState = models.BookingPaymentFailed
		default:
			return fmt.Errorf("%w: unknown payment outcome %q", models.ErrValidation, outcome)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if confirmed {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"reference":  booking.Reference,
		}).Info("Booking confirmed")
		s.publish(ctx, events.EventBookingConfirmed, booking)
		s.runConfirmationSideEffects(ctx, booking.ID)
	}
	return booking, confirmed, nil
}

// runConfirmationSideEffects issues tickets and awards points for a
// confirmed+paid booking. Both are idempotent and re-run by the
// reconciliation sweep if they fail here.
func (s *BookingService) runConfirmationSideEffects(ctx context.Context, bookingID uuid.UUID) {
	if _, err := s.ticketing.IssueTicketsForBooking(ctx, bookingID); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).
			Error("Ticket issuance failed after confirmation, sweep will retry")
	}
	if err := s.loyalty.AwardPointsForBooking(ctx, bookingID); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).
			Error("Point award failed after confirmation, sweep will retry")
	}
}

// EnsureConfirmationSideEffects re-runs the idempotent post-confirmation
// work. Used by the reconciliation sweep.
func (s *BookingService) EnsureConfirmationSideEffects(ctx context.Context, bookingID uuid.UUID) {
	s.runConfirmationSideEffects(ctx, bookingID)
}

// CancelBooking cancels a pending or confirmed booking, releases its seats
// and voids its not-yet-boarded tickets. A paid booking keeps payment_state
// "paid" until the refund is confirmed separately — cancelled-but-paid means
// "cancelled pending refund".
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", models.ErrValidation)
	}

	var booking *models.Booking
	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		b, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if b.Status == models.BookingStatusCancelled {
			return fmt.Errorf("%w: booking %s", models.ErrAlreadyCancelled, b.Reference)
		}

		if _, err := s.bookingRepo.Cancel(ctx, tx, b.ID, reason); err != nil {
			return err
		}
		if err := s.seatInv.ReleaseSeats(ctx, tx, b.ID); err != nil {
			return err
		}
		if err := s.ticketing.VoidTicketsForBooking(ctx, tx, b.ID, reason); err != nil {
			return err
		}

		b.Status = models.BookingStatusCancelled
		b.CancelReason = &reason
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":    booking.ID,
		"reference":     booking.Reference,
		"payment_state": booking.PaymentState,
		"reason":        reason,
	}).Info("Booking cancelled")

	if booking.PaymentState == models.BookingPaymentPaid {
		s.logger.WithField("booking_id", booking.ID).Info("Cancelled booking awaits refund")
	}

	s.publish(ctx, events.EventBookingCancelled, booking)
	return booking, nil
}

// GetBooking loads a booking with its passengers and tickets
func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*BookingDetails, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	passengers, err := s.bookingRepo.ListPassengers(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.ticketing.ListTickets(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingDetails{Booking: booking, Passengers: passengers, Tickets: tickets}, nil
}

// BookingDetails aggregates a booking with its passenger and ticket rows
type BookingDetails struct {
	Booking    *models.Booking           `json:"booking"`
	Passengers []models.BookingPassenger `json:"passengers"`
	Tickets    []models.Ticket           `json:"tickets"`
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking) {
	event := events.BookingEvent{
		Type:             eventType,
		BookingID:        b.ID,
		BookingReference: b.Reference,
		FlightInstanceID: b.FlightInstanceID,
		UserID:           b.UserID,
		Status:           string(b.Status),
		PaymentState:     string(b.PaymentState),
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Failed to publish booking event")
	}
}

// generateReference produces a 6-character PNR-style booking reference
func generateReference() string {
	code := make([]byte, 6)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable for reference generation
			panic(fmt.Sprintf("reference generation: %v", err))
		}
		code[i] = referenceAlphabet[n.Int64()]
	}
	return string(code)
}
