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

// ticketingPrefix is the airline's ticketing plate prefix
const ticketingPrefix = "999"

// TicketingService issues tickets for confirmed bookings and runs the
// check-in/boarding flow. Tickets are created here and nowhere else.
type TicketingService struct {
	db          *sqlx.DB
	ticketRepo  *database.TicketRepository
	bookingRepo *database.BookingRepository
	flightRepo  *database.FlightRepository
	seatRepo    *database.SeatRepository
	producer    *events.Producer
	logger      *logrus.Logger
}

// NewTicketingService creates a new ticketing service
func NewTicketingService(
	db *sqlx.DB,
	ticketRepo *database.TicketRepository,
	bookingRepo *database.BookingRepository,
	flightRepo *database.FlightRepository,
	seatRepo *database.SeatRepository,
	producer *events.Producer,
	logger *logrus.Logger,
) *TicketingService {
	return &TicketingService{
		db:          db,
		ticketRepo:  ticketRepo,
		bookingRepo: bookingRepo,
		flightRepo:  flightRepo,
		seatRepo:    seatRepo,
		producer:    producer,
		logger:      logger,
	}
}

// IssueTicketsForBooking issues one ticket per passenger of a confirmed
// booking. Idempotent: passengers who already have a non-voided ticket are
// skipped, so re-running after a partial failure only fills the gaps.
func (s *TicketingService) IssueTicketsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Ticket, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking %s is not confirmed", models.ErrValidation, booking.Reference)
	}

	passengers, err := s.bookingRepo.ListPassengers(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.ticketRepo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	ticketed := make(map[uuid.UUID]bool, len(existing))
	for _, t := range existing {
		if t.Status != models.TicketStatusVoided {
			ticketed[t.BookingPassengerID] = true
		}
	}

	var issued int
	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, p := range passengers {
			if ticketed[p.ID] {
				continue
			}
			ticket := &models.Ticket{
				BookingID:          booking.ID,
				BookingPassengerID: p.ID,
				TicketCode:         generateTicketCode(),
				Status:             models.TicketStatusIssued,
				SeatID:             p.SeatID,
			}
			if err := s.ticketRepo.Create(ctx, tx, ticket); err != nil {
				if database.IsUniqueViolation(err) {
					// A concurrent issuance pass won; nothing to do.
					continue
				}
				return err
			}
			issued++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if issued > 0 {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"reference":  booking.Reference,
			"issued":     issued,
		}).Info("Tickets issued")
		s.publishTicketEvent(ctx, booking)
	}

	return s.ticketRepo.ListByBooking(ctx, bookingID)
}

// VoidTicket voids a ticket that has not boarded. Voiding an already-voided
// ticket is a no-op so cancellation flows can retry safely.
func (s *TicketingService) VoidTicket(ctx context.Context, ticketID uuid.UUID, reason string) (*models.Ticket, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: void reason is required", models.ErrValidation)
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case models.TicketStatusBoarded:
		return nil, fmt.Errorf("%w: ticket %s", models.ErrCannotVoidBoardedTicket, ticket.TicketCode)
	case models.TicketStatusVoided:
		return ticket, nil
	}

	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := s.ticketRepo.Void(ctx, tx, ticketID, reason)
		if err != nil {
			return err
		}
		if !ok {
			// Raced with a boarding or another void; re-read to decide.
			current, err := s.ticketRepo.GetByID(ctx, ticketID)
			if err != nil {
				return err
			}
			if current.Status == models.TicketStatusBoarded {
				return fmt.Errorf("%w: ticket %s", models.ErrCannotVoidBoardedTicket, current.TicketCode)
			}
			return nil
		}
		return s.ticketRepo.VoidBoardingPassesForTicket(ctx, tx, ticketID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_id":   ticketID,
		"ticket_code": ticket.TicketCode,
		"reason":      reason,
	}).Info("Ticket voided")

	return s.ticketRepo.GetByID(ctx, ticketID)
}

// VoidTicketsForBooking voids every voidable ticket of a booking inside the
// caller's transaction. Boarded tickets stay untouched; used boarding passes
// are not retroactively revoked.
func (s *TicketingService) VoidTicketsForBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID, reason string) error {
	voided, err := s.ticketRepo.VoidAllForBooking(ctx, tx, bookingID, reason)
	if err != nil {
		return err
	}
	for _, ticketID := range voided {
		if err := s.ticketRepo.VoidBoardingPassesForTicket(ctx, tx, ticketID); err != nil {
			return err
		}
	}
	if len(voided) > 0 {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"voided":     len(voided),
		}).Info("Booking tickets voided")
	}
	return nil
}

// GenerateBoardingPass checks a passenger in: the ticket moves from issued
// to checked_in and an active boarding pass is created
func (s *TicketingService) GenerateBoardingPass(ctx context.Context, ticketID uuid.UUID) (*models.BoardingPass, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketStatusIssued {
		return nil, fmt.Errorf("%w: ticket %s is %s, check-in requires an issued ticket",
			models.ErrValidation, ticket.TicketCode, ticket.Status)
	}

	booking, err := s.bookingRepo.GetByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}

	pass := &models.BoardingPass{
		TicketID:         ticket.ID,
		FlightInstanceID: booking.FlightInstanceID,
		Status:           models.BoardingPassActive,
	}

	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := s.ticketRepo.TransitionStatus(ctx, tx, ticket.ID, models.TicketStatusIssued, models.TicketStatusCheckedIn)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: ticket %s is no longer eligible for check-in", models.ErrValidation, ticket.TicketCode)
		}
		return s.ticketRepo.CreateBoardingPass(ctx, tx, pass)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_id":   ticket.ID,
		"ticket_code": ticket.TicketCode,
	}).Info("Boarding pass generated")
	return pass, nil
}

// ScanAtGate boards a passenger: requires an active, unscanned boarding
// pass and moves the ticket to its terminal boarded state
func (s *TicketingService) ScanAtGate(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	pass, err := s.ticketRepo.GetActiveBoardingPass(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		scanned, err := s.ticketRepo.MarkBoardingPassScanned(ctx, tx, pass.ID)
		if err != nil {
			return err
		}
		if !scanned {
			return fmt.Errorf("%w: boarding pass already scanned", models.ErrValidation)
		}
		ok, err := s.ticketRepo.TransitionStatus(ctx, tx, ticketID, models.TicketStatusCheckedIn, models.TicketStatusBoarded)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: ticket is not checked in", models.ErrValidation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("ticket_id", ticketID).Info("Passenger boarded")
	return s.ticketRepo.GetByID(ctx, ticketID)
}

// ListTickets returns all tickets of a booking
func (s *TicketingService) ListTickets(ctx context.Context, bookingID uuid.UUID) ([]models.Ticket, error) {
	return s.ticketRepo.ListByBooking(ctx, bookingID)
}

// GetTicket loads one ticket
func (s *TicketingService) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return s.ticketRepo.GetByID(ctx, ticketID)
}

// BoardingDocument gathers everything the boarding pass PDF needs
type BoardingDocument struct {
	PassengerName    string
	TicketCode       string
	BookingReference string
	FlightNumber     string
	SeatNumber       string
	DepartureTime    string
}

// BoardingDocumentForTicket assembles the printable boarding pass data for
// a checked-in ticket
func (s *TicketingService) BoardingDocumentForTicket(ctx context.Context, ticketID uuid.UUID) (*BoardingDocument, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketStatusCheckedIn && ticket.Status != models.TicketStatusBoarded {
		return nil, fmt.Errorf("%w: ticket %s has no boarding pass", models.ErrValidation, ticket.TicketCode)
	}

	booking, err := s.bookingRepo.GetByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	flight, err := s.flightRepo.GetByID(ctx, booking.FlightInstanceID)
	if err != nil {
		return nil, err
	}

	passengers, err := s.bookingRepo.ListPassengers(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	var passengerName string
	for _, p := range passengers {
		if p.ID == ticket.BookingPassengerID {
			passengerName = p.FullName
			break
		}
	}

	doc := &BoardingDocument{
		PassengerName:    passengerName,
		TicketCode:       ticket.TicketCode,
		BookingReference: booking.Reference,
		FlightNumber:     flight.FlightNumber,
		DepartureTime:    flight.DepartureTime.Format("2006-01-02 15:04"),
	}
	if ticket.SeatID != nil {
		seat, err := s.seatRepo.GetByID(ctx, *ticket.SeatID)
		if err != nil {
			return nil, err
		}
		doc.SeatNumber = seat.SeatNumber
	}
	return doc, nil
}

func (s *TicketingService) publishTicketEvent(ctx context.Context, booking *models.Booking) {
	event := events.BookingEvent{
		Type:             events.EventTicketIssued,
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		FlightInstanceID: booking.FlightInstanceID,
		UserID:           booking.UserID,
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to publish ticket event")
	}
}

// generateTicketCode produces a 13-digit ticket number on the airline's
// ticketing prefix
func generateTicketCode() string {
	digits := make([]byte, 10)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			panic(fmt.Sprintf("ticket code generation: %v", err))
		}
		digits[i] = byte('0' + n.Int64())
	}
	return ticketingPrefix + string(digits)
}
