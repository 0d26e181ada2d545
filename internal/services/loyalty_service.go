package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/events"
	"github.com/skylinkair/booking-backend/internal/models"
)

// LoyaltyService maintains frequent flyer balances. Booking awards are
// once-per-booking; manual adjustments are append-only operator actions.
type LoyaltyService struct {
	db            *sqlx.DB
	loyaltyRepo   *database.LoyaltyRepository
	bookingRepo   *database.BookingRepository
	paymentRepo   *database.PaymentRepository
	producer      *events.Producer
	pointsPerUnit int64
	logger        *logrus.Logger
}

// NewLoyaltyService creates a new loyalty service. pointsPerUnit is the
// number of points awarded per major currency unit paid.
func NewLoyaltyService(
	db *sqlx.DB,
	loyaltyRepo *database.LoyaltyRepository,
	bookingRepo *database.BookingRepository,
	paymentRepo *database.PaymentRepository,
	producer *events.Producer,
	pointsPerUnit int64,
	logger *logrus.Logger,
) *LoyaltyService {
	return &LoyaltyService{
		db:            db,
		loyaltyRepo:   loyaltyRepo,
		bookingRepo:   bookingRepo,
		paymentRepo:   paymentRepo,
		producer:      producer,
		pointsPerUnit: pointsPerUnit,
		logger:        logger,
	}
}

// AwardPointsForBooking credits points for a confirmed, paid booking exactly
// once. The award marker's unique booking_id constraint guards against
// duplicate webhooks and sweep re-runs: the marker and the balance credit
// commit in the same transaction, so a retry either finds the marker or
// redoes both.
func (s *LoyaltyService) AwardPointsForBooking(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusConfirmed || booking.PaymentState != models.BookingPaymentPaid {
		return fmt.Errorf("%w: booking %s is not confirmed and paid", models.ErrValidation, booking.Reference)
	}

	account, err := s.loyaltyRepo.GetAccountByUserID(ctx, booking.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Not every traveller is enrolled; nothing to award.
			s.logger.WithField("booking_id", bookingID).Debug("No frequent flyer account, skipping award")
			return nil
		}
		return err
	}

	points, err := s.pointsForBooking(ctx, booking)
	if err != nil {
		return err
	}
	if points <= 0 {
		return nil
	}

	var awarded bool
	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		award := &models.LoyaltyAward{
			BookingID: booking.ID,
			AccountID: account.ID,
			Points:    points,
		}
		inserted, err := s.loyaltyRepo.InsertAward(ctx, tx, award)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		awarded = true
		return s.loyaltyRepo.CreditPoints(ctx, tx, account.ID, points)
	})
	if err != nil {
		return err
	}

	if awarded {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"account_id": account.ID,
			"points":     points,
		}).Info("Loyalty points awarded")
		s.publishAward(ctx, booking, points)
	}
	return nil
}

// ManualAdjust applies an operator credit or debit. Every call moves the
// balance; callers wanting idempotency must not retry blindly.
func (s *LoyaltyService) ManualAdjust(ctx context.Context, actorID uuid.UUID, req *models.ManualAdjustRequest) (*models.FrequentFlyerAccount, error) {
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: adjustment delta must be non-zero", models.ErrValidation)
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: adjustment reason is required", models.ErrValidation)
	}

	account, err := s.loyaltyRepo.GetAccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		adj := &models.LoyaltyAdjustment{
			AccountID: account.ID,
			Delta:     req.Delta,
			Reason:    req.Reason,
			ActorID:   actorID,
		}
		if err := s.loyaltyRepo.InsertAdjustment(ctx, tx, adj); err != nil {
			return err
		}
		return s.loyaltyRepo.CreditPoints(ctx, tx, account.ID, req.Delta)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"delta":      req.Delta,
		"actor_id":   actorID,
		"reason":     req.Reason,
	}).Info("Manual loyalty adjustment applied")

	return s.loyaltyRepo.GetAccountByID(ctx, account.ID)
}

// GetAccount loads a frequent flyer account by user
func (s *LoyaltyService) GetAccount(ctx context.Context, userID uuid.UUID) (*models.FrequentFlyerAccount, error) {
	return s.loyaltyRepo.GetAccountByUserID(ctx, userID)
}

// pointsForBooking derives the award from the amount actually captured: the
// succeeded payment's amount converted to major units times the earn rate.
func (s *LoyaltyService) pointsForBooking(ctx context.Context, booking *models.Booking) (int64, error) {
	payments, err := s.paymentRepo.ListByBooking(ctx, booking.ID)
	if err != nil {
		return 0, err
	}
	for _, p := range payments {
		if p.Status == models.PaymentStatusSucceeded || p.Status == models.PaymentStatusRefunded {
			return (p.AmountCents / 100) * s.pointsPerUnit, nil
		}
	}
	return 0, fmt.Errorf("%w: no captured payment for booking %s", models.ErrNotFound, booking.Reference)
}

func (s *LoyaltyService) publishAward(ctx context.Context, booking *models.Booking, points int64) {
	event := events.BookingEvent{
		Type:             events.EventPointsAwarded,
		BookingID:        booking.ID,
		BookingReference: booking.Reference,
		FlightInstanceID: booking.FlightInstanceID,
		UserID:           booking.UserID,
		Points:           points,
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to publish award event")
	}
}
