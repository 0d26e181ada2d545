package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
	"github.com/skylinkair/booking-backend/internal/services"
)

// aeroPaySignatureHeader carries the gateway's HMAC of the request body
const aeroPaySignatureHeader = "X-AeroPay-Signature"

// PaymentHandler handles payment-related HTTP requests, including the
// gateway webhook endpoint
type PaymentHandler struct {
	paymentSvc *services.PaymentService
	bookingSvc *services.BookingService
	logger     *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentSvc *services.PaymentService, bookingSvc *services.BookingService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, bookingSvc: bookingSvc, logger: logger}
}

// CreateIntent handles POST /api/v1/payments/intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	details, err := h.bookingSvc.GetBooking(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canAccessBooking(c, details.Booking.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You don't have permission to pay for this booking",
		})
		return
	}

	resp, err := h.paymentSvc.CreateIntent(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Webhook handles POST /webhooks/aeropay. The gateway retries on any
// non-200, so everything except a bad signature or a storage failure is
// acknowledged: duplicates, orphans and unhandled event types are recorded
// no-ops.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read request body",
		})
		return
	}

	signature := c.GetHeader(aeroPaySignatureHeader)
	if err := h.paymentSvc.HandleGatewayEvent(c.Request.Context(), body, signature); err != nil {
		if errors.Is(err, models.ErrInvalidSignature) || errors.Is(err, models.ErrValidation) {
			respondError(c, h.logger, err)
			return
		}
		h.logger.WithError(err).Error("Webhook processing failed, gateway will retry")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "processing_failed",
			Message: "Event could not be processed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Refund handles POST /api/v1/payments/:id/refund (ops only)
func (h *PaymentHandler) Refund(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	payment, err := h.paymentSvc.Refund(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListPayments handles GET /api/v1/bookings/:id/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	details, err := h.bookingSvc.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canAccessBooking(c, details.Booking.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "You don't have permission to access this booking",
		})
		return
	}

	payments, err := h.paymentSvc.ListPayments(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": bookingID,
		"payments":   payments,
		"total":      len(payments),
	})
}

// AuditTrail handles GET /api/v1/payments/:id/audit (ops only)
func (h *PaymentHandler) AuditTrail(c *gin.Context) {
	paymentID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	audits, err := h.paymentSvc.AuditTrail(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id": paymentID,
		"events":     audits,
		"total":      len(audits),
	})
}
