package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/models"
)

// PaymentService is the reconciliation engine between the external gateway
// and local booking state. It owns payment rows, translates verified webhook
// deliveries into booking outcomes exactly once, and appends every gateway
// interaction to the audit log.
type PaymentService struct {
	db          *sqlx.DB
	paymentRepo *database.PaymentRepository
	bookingRepo *database.BookingRepository
	fareRepo    *database.FareRepository
	auditRepo   *database.PaymentAuditRepository
	gateway     *AeroPayService
	bookingSvc  *BookingService
	currency    string
	logger      *logrus.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	db *sqlx.DB,
	paymentRepo *database.PaymentRepository,
	bookingRepo *database.BookingRepository,
	fareRepo *database.FareRepository,
	auditRepo *database.PaymentAuditRepository,
	gateway *AeroPayService,
	bookingSvc *BookingService,
	currency string,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		db:          db,
		paymentRepo: paymentRepo,
		bookingRepo: bookingRepo,
		fareRepo:    fareRepo,
		auditRepo:   auditRepo,
		gateway:     gateway,
		bookingSvc:  bookingSvc,
		currency:    currency,
		logger:      logger,
	}
}

// CreateIntent opens a charge attempt for a payable booking. The gateway
// call happens with no local locks held; the payment row is only written
// after the gateway accepted the intent, so a gateway failure leaves no
// local trace beyond the audit log.
func (s *PaymentService) CreateIntent(ctx context.Context, bookingID uuid.UUID) (*models.CreateIntentResponse, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending || booking.PaymentState == models.BookingPaymentPaid {
		return nil, fmt.Errorf("%w: booking %s is %s/%s", models.ErrBookingNotPayable,
			booking.Reference, booking.Status, booking.PaymentState)
	}

	passengers, err := s.bookingRepo.ListPassengers(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	fareBasis := "Y" // published economy fare when the booking carries no code
	if booking.FareBasisCode != nil {
		fareBasis = *booking.FareBasisCode
	}
	perPassenger, err := s.fareRepo.GetFareAmount(ctx, booking.FlightInstanceID, fareBasis)
	if err != nil {
		return nil, err
	}
	amount := perPassenger * int64(len(passengers))

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		InvoiceID:   booking.Reference,
		AmountCents: amount,
		Currency:    s.currency,
		Description: fmt.Sprintf("Booking %s", booking.Reference),
		Metadata:    map[string]string{"booking_id": booking.ID.String()},
	})
	if err != nil {
		audit := models.NewPaymentAudit(models.PaymentEventIntentFailed, models.PaymentSourceBackend).WithError(err)
		audit.BookingID = &booking.ID
		s.auditRepo.Log(ctx, audit)
		return nil, err
	}

	payment := &models.Payment{
		BookingID:       booking.ID,
		GatewayIntentID: intent.IntentID,
		AmountCents:     amount,
		Currency:        s.currency,
		Status:          models.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		// The gateway holds an intent we failed to record; the audit entry
		// is what lets an operator reconcile it.
		audit := models.NewPaymentAudit(models.PaymentEventIntentFailed, models.PaymentSourceBackend).
			WithTransaction(intent.IntentID).WithError(err)
		audit.BookingID = &booking.ID
		s.auditRepo.Log(ctx, audit)
		return nil, err
	}

	audit := models.NewPaymentAudit(models.PaymentEventIntentCreated, models.PaymentSourceBackend).
		WithPayment(payment).WithTransaction(intent.IntentID)
	audit.ExpectedAmountCents = &amount
	s.auditRepo.Log(ctx, audit)

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"payment_id":   payment.ID,
		"intent_id":    intent.IntentID,
		"amount_cents": amount,
	}).Info("Payment intent created")

	return &models.CreateIntentResponse{
		PaymentID:    payment.ID,
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  amount,
		Currency:     s.currency,
	}, nil
}

// HandleGatewayEvent processes one inbound webhook delivery. The signature
// is verified before anything in the body is trusted. Unknown transactions
// and duplicate deliveries are audited no-ops, never errors, so the gateway
// stops redelivering them. Only a bad signature or a storage failure is
// reported back as an error.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, body []byte, signature string) error {
	if err := s.gateway.VerifySignature(body, signature); err != nil {
		raw := string(body)
		audit := models.NewPaymentAudit(models.PaymentEventWebhookRejected, models.PaymentSourceWebhook).WithError(err)
		audit.RawBody = &raw
		s.auditRepo.Log(ctx, audit)
		s.logger.Warn("Webhook rejected: invalid signature")
		return err
	}

	event, err := s.gateway.ParseWebhook(body)
	if err != nil {
		raw := string(body)
		audit := models.NewPaymentAudit(models.PaymentEventWebhookRejected, models.PaymentSourceWebhook).WithError(err)
		audit.RawBody = &raw
		s.auditRepo.Log(ctx, audit)
		return err
	}

	payment, err := s.paymentRepo.GetByGatewayIntentID(ctx, event.TransactionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			raw := string(body)
			audit := models.NewPaymentAudit(models.PaymentEventWebhookOrphan, models.PaymentSourceWebhook).
				WithTransaction(event.TransactionID)
			audit.RawBody = &raw
			s.auditRepo.Log(ctx, audit)
			s.logger.WithField("transaction_id", event.TransactionID).
				Warn("Webhook for unknown transaction, acknowledged without action")
			return nil
		}
		return err
	}

	audit := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		WithPayment(payment).WithTransaction(event.TransactionID)
	audit.ReceivedAmountCents = &event.AmountCents
	s.auditRepo.Log(ctx, audit)

	switch event.EventType {
	case "payment.succeeded":
		return s.applySucceeded(ctx, payment, event)
	case "payment.failed":
		return s.applyFailed(ctx, payment, event)
	case "refund.completed":
		return s.applyRefundCompleted(ctx, payment, event)
	default:
		// Event types this service does not handle are recorded and
		// acknowledged, like orphans, so the gateway stops redelivering.
		raw := string(body)
		ignored := models.NewPaymentAudit(models.PaymentEventWebhookIgnored, models.PaymentSourceWebhook).
			WithPayment(payment).WithTransaction(event.TransactionID)
		ignored.RawBody = &raw
		s.auditRepo.Log(ctx, ignored)
		s.logger.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"event_type": event.EventType,
		}).Warn("Unhandled webhook event type, acknowledged without action")
		return nil
	}
}

func (s *PaymentService) applySucceeded(ctx context.Context, payment *models.Payment, event *GatewayWebhookEvent) error {
	if event.AmountCents != payment.AmountCents {
		audit := models.NewPaymentAudit(models.PaymentEventAmountMismatch, models.PaymentSourceWebhook).
			WithPayment(payment).WithTransaction(event.TransactionID)
		audit.ExpectedAmountCents = &payment.AmountCents
		audit.ReceivedAmountCents = &event.AmountCents
		s.auditRepo.Log(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"expected":   payment.AmountCents,
			"received":   event.AmountCents,
		}).Error("Webhook amount mismatch, booking left unconfirmed")
		// Acknowledged so the gateway stops retrying; an operator resolves it.
		return nil
	}

	ok, err := s.paymentRepo.TransitionStatus(ctx, s.db, payment.ID, models.PaymentStatusPending, models.PaymentStatusSucceeded)
	if err != nil {
		return err
	}
	if !ok {
		s.auditDuplicate(ctx, payment, event)
		return nil
	}

	_, confirmed, err := s.bookingSvc.ApplyPaymentOutcome(ctx, payment.BookingID, models.PaymentOutcomeSucceeded)
	if err != nil {
		// Payment row is already succeeded; the reconciliation sweep picks
		// the booking up from there.
		s.logger.WithError(err).WithField("payment_id", payment.ID).
			Error("Payment captured but booking confirmation failed")
		return err
	}
	if !confirmed {
		// The booking reached a terminal state through another payment or a
		// cancellation, so this capture holds money the booking never needed.
		surplus := models.NewPaymentAudit(models.PaymentEventSurplusCapture, models.PaymentSourceWebhook).
			WithPayment(payment).WithTransaction(event.TransactionID)
		surplus.ReceivedAmountCents = &event.AmountCents
		s.auditRepo.Log(ctx, surplus)
		s.logger.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"booking_id": payment.BookingID,
		}).Error("Captured payment did not drive booking confirmation, refund required")
	}
	return nil
}

func (s *PaymentService) applyFailed(ctx context.Context, payment *models.Payment, event *GatewayWebhookEvent) error {
	ok, err := s.paymentRepo.TransitionStatus(ctx, s.db, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed)
	if err != nil {
		return err
	}
	if !ok {
		s.auditDuplicate(ctx, payment, event)
		return nil
	}

	if _, _, err := s.bookingSvc.ApplyPaymentOutcome(ctx, payment.BookingID, models.PaymentOutcomeFailed); err != nil {
		return err
	}
	s.logger.WithField("payment_id", payment.ID).Info("Payment failed, booking remains payable")
	return nil
}

func (s *PaymentService) applyRefundCompleted(ctx context.Context, payment *models.Payment, event *GatewayWebhookEvent) error {
	var moved bool
	err := database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := s.paymentRepo.TransitionStatus(ctx, tx, payment.ID, models.PaymentStatusSucceeded, models.PaymentStatusRefunded)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		moved = true
		return s.bookingRepo.SetPaymentState(ctx, tx, payment.BookingID, models.BookingPaymentRefunded)
	})
	if err != nil {
		return err
	}

	if !moved {
		s.auditDuplicate(ctx, payment, event)
		return nil
	}

	audit := models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceWebhook).
		WithPayment(payment).WithTransaction(event.TransactionID)
	s.auditRepo.Log(ctx, audit)
	s.logger.WithField("payment_id", payment.ID).Info("Refund completed")
	return nil
}

func (s *PaymentService) auditDuplicate(ctx context.Context, payment *models.Payment, event *GatewayWebhookEvent) {
	audit := models.NewPaymentAudit(models.PaymentEventWebhookDuplicate, models.PaymentSourceWebhook).
		WithPayment(payment).WithTransaction(event.TransactionID)
	audit.IsDuplicate = true
	s.auditRepo.Log(ctx, audit)
	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"event_type": event.EventType,
	}).Info("Duplicate webhook delivery ignored")
}

// Refund reverses a captured payment, typically for a cancelled paid
// booking. The gateway confirms synchronously here; the refund.completed
// webhook that follows becomes an audited duplicate.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: refund reason is required", models.ErrValidation)
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment %s is %s, only captured payments can be refunded",
			models.ErrValidation, payment.ID, payment.Status)
	}

	initAudit := models.NewPaymentAudit(models.PaymentEventRefundInitiated, models.PaymentSourceBackend).
		WithPayment(payment).WithTransaction(payment.GatewayIntentID)
	initAudit.ErrorMessage = &reason
	s.auditRepo.Log(ctx, initAudit)

	if err := s.gateway.RefundCharge(ctx, payment.GatewayIntentID); err != nil {
		return nil, err
	}

	err = database.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := s.paymentRepo.TransitionStatus(ctx, tx, payment.ID, models.PaymentStatusSucceeded, models.PaymentStatusRefunded)
		if err != nil {
			return err
		}
		if !ok {
			// The webhook raced us and already landed the refund.
			return nil
		}
		return s.bookingRepo.SetPaymentState(ctx, tx, payment.BookingID, models.BookingPaymentRefunded)
	})
	if err != nil {
		return nil, err
	}

	audit := models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceBackend).
		WithPayment(payment).WithTransaction(payment.GatewayIntentID)
	s.auditRepo.Log(ctx, audit)

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
		"reason":     reason,
	}).Info("Payment refunded")

	return s.paymentRepo.GetByID(ctx, paymentID)
}

// ListPayments returns all payment attempts for a booking
func (s *PaymentService) ListPayments(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	return s.paymentRepo.ListByBooking(ctx, bookingID)
}

// AuditTrail returns the audit log of a payment, oldest first
func (s *PaymentService) AuditTrail(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error) {
	if _, err := s.paymentRepo.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByPayment(ctx, paymentID)
}
