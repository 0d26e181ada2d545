package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

const sweepBatchSize = 200

// ReconciliationService runs the periodic sweeps that keep booking state
// consistent without human intervention: expiring bookings that never paid
// and re-running the idempotent side effects of confirmed bookings.
type ReconciliationService struct {
	bookingRepo   *database.BookingRepository
	bookingSvc    *BookingService
	pendingExpiry time.Duration
	logger        *logrus.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	bookingRepo *database.BookingRepository,
	bookingSvc *BookingService,
	pendingExpiry time.Duration,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		bookingRepo:   bookingRepo,
		bookingSvc:    bookingSvc,
		pendingExpiry: pendingExpiry,
		logger:        logger,
	}
}

// ExpireStalePending cancels pending bookings whose payment window has
// closed, releasing their seats. A booking confirmed between the listing
// and the cancel attempt survives: CancelBooking re-reads under lock and
// pending is still cancellable, but the sweep only targets rows that were
// stale at list time.
func (s *ReconciliationService) ExpireStalePending(ctx context.Context) {
	cutoff := time.Now().Add(-s.pendingExpiry)
	stale, err := s.bookingRepo.ListStalePending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list stale pending bookings")
		return
	}
	if len(stale) == 0 {
		return
	}

	var expired int
	for _, b := range stale {
		// Re-check: a payment may have landed since the listing.
		current, err := s.bookingRepo.GetByID(ctx, b.ID)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Skipping expiry, booking reload failed")
			continue
		}
		if current.Status != models.BookingStatusPending || current.PaymentState == models.BookingPaymentPaid {
			continue
		}

		if _, err := s.bookingSvc.CancelBooking(ctx, b.ID, "payment window expired"); err != nil {
			if errors.Is(err, models.ErrAlreadyCancelled) {
				continue
			}
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to expire pending booking")
			continue
		}
		expired++
	}

	s.logger.WithFields(logrus.Fields{
		"candidates": len(stale),
		"expired":    expired,
	}).Info("Stale pending sweep finished")
}

// EnsureSideEffects re-runs ticket issuance and point award for recently
// confirmed paid bookings. Both operations are idempotent, so re-processing
// an already-complete booking does nothing.
func (s *ReconciliationService) EnsureSideEffects(ctx context.Context, window time.Duration) {
	since := time.Now().Add(-window)
	bookings, err := s.bookingRepo.ListConfirmedPaidSince(ctx, since, sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list confirmed bookings for side effect sweep")
		return
	}

	for _, b := range bookings {
		s.bookingSvc.EnsureConfirmationSideEffects(ctx, b.ID)
	}

	if len(bookings) > 0 {
		s.logger.WithField("bookings", len(bookings)).Info("Side effect sweep finished")
	}
}
