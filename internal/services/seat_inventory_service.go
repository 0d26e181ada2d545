package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/cache"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

// SeatReservation is one (passenger, seat) pair inside a reservation request
type SeatReservation struct {
	BookingPassengerID uuid.UUID
	SeatID             uuid.UUID
	SeatNumber         string
}

// SeatInventoryService owns the mapping of (flight, seat) to assignment and
// enforces at-most-one-passenger-per-seat-per-flight. Reservation is
// all-or-nothing per call: the caller's transaction rolls back on conflict.
type SeatInventoryService struct {
	seatRepo   *database.SeatRepository
	flightRepo *database.FlightRepository
	holds      *cache.SeatHoldCache // may be nil
	holdTTL    time.Duration
	logger     *logrus.Logger
}

// NewSeatInventoryService creates a new seat inventory service
func NewSeatInventoryService(
	seatRepo *database.SeatRepository,
	flightRepo *database.FlightRepository,
	holds *cache.SeatHoldCache,
	holdTTL time.Duration,
	logger *logrus.Logger,
) *SeatInventoryService {
	return &SeatInventoryService{
		seatRepo:   seatRepo,
		flightRepo: flightRepo,
		holds:      holds,
		holdTTL:    holdTTL,
		logger:     logger,
	}
}

// AcquireHolds takes advisory holds on the requested seats before the
// database transaction opens. Returns the seat numbers that are already
// held elsewhere. A nil cache makes this a no-op; the database constraint
// still decides every race.
func (s *SeatInventoryService) AcquireHolds(ctx context.Context, flightInstanceID uuid.UUID, reservations []SeatReservation) ([]string, error) {
	if s.holds == nil {
		return nil, nil
	}

	var contested []string
	var acquired []SeatReservation
	for _, res := range reservations {
		ok, err := s.holds.AcquireHold(ctx, flightInstanceID, res.SeatID, s.holdTTL)
		if err != nil {
			// Cache trouble must not block bookings; fall through to the
			// database constraint.
			s.logger.WithError(err).Warn("Seat hold cache unavailable, relying on database constraint")
			return nil, nil
		}
		if !ok {
			contested = append(contested, res.SeatNumber)
			continue
		}
		acquired = append(acquired, res)
	}

	if len(contested) > 0 {
		s.releaseHolds(ctx, flightInstanceID, acquired)
		return contested, nil
	}
	return nil, nil
}

// ReleaseHolds drops the advisory holds after the transaction finished,
// regardless of outcome
func (s *SeatInventoryService) ReleaseHolds(ctx context.Context, flightInstanceID uuid.UUID, reservations []SeatReservation) {
	s.releaseHolds(ctx, flightInstanceID, reservations)
}

func (s *SeatInventoryService) releaseHolds(ctx context.Context, flightInstanceID uuid.UUID, reservations []SeatReservation) {
	if s.holds == nil {
		return
	}
	for _, res := range reservations {
		if err := s.holds.ReleaseHold(ctx, flightInstanceID, res.SeatID); err != nil {
			s.logger.WithError(err).WithField("seat_id", res.SeatID).Warn("Failed to release seat hold")
		}
	}
}

// ReserveSeats atomically checks and creates seat assignment links inside
// the caller's transaction. If any requested seat is already held by a
// non-cancelled booking on the same flight, the whole call fails with a
// SeatConflictError naming the contested seats and nothing is reserved.
func (s *SeatInventoryService) ReserveSeats(ctx context.Context, tx *sqlx.Tx, flightInstanceID, bookingID uuid.UUID, reservations []SeatReservation) error {
	if len(reservations) == 0 {
		return nil
	}

	seatIDs := make([]uuid.UUID, len(reservations))
	numbersByID := make(map[uuid.UUID]string, len(reservations))
	for i, res := range reservations {
		seatIDs[i] = res.SeatID
		numbersByID[res.SeatID] = res.SeatNumber
	}

	held, err := s.seatRepo.HeldSeatNumbers(ctx, tx, flightInstanceID, seatIDs)
	if err != nil {
		return err
	}
	if len(held) > 0 {
		return &models.SeatConflictError{SeatNumbers: held}
	}

	for _, res := range reservations {
		assignment := &models.SeatAssignment{
			FlightInstanceID:   flightInstanceID,
			SeatID:             res.SeatID,
			BookingID:          bookingID,
			BookingPassengerID: res.BookingPassengerID,
		}
		if err := s.seatRepo.Assign(ctx, tx, assignment); err != nil {
			if database.IsUniqueViolation(err) {
				// Lost a race after the pre-check; the constraint is the
				// final arbiter.
				return &models.SeatConflictError{SeatNumbers: []string{numbersByID[res.SeatID]}}
			}
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"flight_instance_id": flightInstanceID,
		"booking_id":         bookingID,
		"seats":              len(reservations),
	}).Debug("Seats reserved")
	return nil
}

// ReleaseSeats clears all seat links of a booking inside the caller's
// transaction. Idempotent: releasing an already-released booking is a no-op.
func (s *SeatInventoryService) ReleaseSeats(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) error {
	released, err := s.seatRepo.ReleaseByBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if released > 0 {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"seats":      released,
		}).Info("Seats released")
	}
	return nil
}

// GetAvailableSeats returns the seats of the aircraft assigned to the
// flight instance that no non-cancelled booking currently holds, optionally
// filtered by cabin class
func (s *SeatInventoryService) GetAvailableSeats(ctx context.Context, flightInstanceID uuid.UUID, cabinClassID *uuid.UUID) ([]models.Seat, error) {
	if _, err := s.flightRepo.GetByID(ctx, flightInstanceID); err != nil {
		return nil, err
	}
	return s.seatRepo.AvailableSeats(ctx, flightInstanceID, cabinClassID)
}

// AssignedCount returns how many seats are currently held on a flight
// instance, evaluated on ext so callers can count inside their own
// transaction
func (s *SeatInventoryService) AssignedCount(ctx context.Context, ext sqlx.ExtContext, flightInstanceID uuid.UUID) (int, error) {
	return s.seatRepo.CountAssigned(ctx, ext, flightInstanceID)
}

// ValidateSeatSelection loads the selected seats and checks they belong to
// the aircraft flying the instance. Returns reservations enriched with seat
// numbers for conflict reporting.
func (s *SeatInventoryService) ValidateSeatSelection(ctx context.Context, aircraftID uuid.UUID, pairs map[uuid.UUID]uuid.UUID) ([]SeatReservation, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	seatIDs := make([]uuid.UUID, 0, len(pairs))
	for _, seatID := range pairs {
		seatIDs = append(seatIDs, seatID)
	}

	seats, err := s.seatRepo.GetSeats(ctx, aircraftID, seatIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Seat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}

	reservations := make([]SeatReservation, 0, len(pairs))
	for passengerLinkID, seatID := range pairs {
		seat, ok := byID[seatID]
		if !ok {
			return nil, fmt.Errorf("%w: seat %s does not exist on this aircraft", models.ErrValidation, seatID)
		}
		reservations = append(reservations, SeatReservation{
			BookingPassengerID: passengerLinkID,
			SeatID:             seatID,
			SeatNumber:         seat.SeatNumber,
		})
	}
	return reservations, nil
}
