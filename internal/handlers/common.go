package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/middleware"
	"github.com/skylinkair/booking-backend/internal/models"
)

// ErrorResponse is the standard error response body
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Seats   []string `json:"seats,omitempty"`
}

// respondError maps domain errors to HTTP responses. Unknown errors become
// an opaque 500; the details stay in the logs.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var seatConflict *models.SeatConflictError
	if errors.As(err, &seatConflict) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "seat_conflict",
			Message: seatConflict.Error(),
			Seats:   seatConflict.SeatNumbers,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, models.ErrSeatConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seat_conflict", Message: err.Error()})
	case errors.Is(err, models.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "capacity_exceeded", Message: err.Error()})
	case errors.Is(err, models.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already_cancelled", Message: err.Error()})
	case errors.Is(err, models.ErrBookingNotPayable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking_not_payable", Message: err.Error()})
	case errors.Is(err, models.ErrCannotVoidBoardedTicket):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket_boarded", Message: err.Error()})
	case errors.Is(err, models.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid_signature", Message: "Webhook signature verification failed"})
	case errors.Is(err, models.ErrGatewayUnavailable):
		logger.WithError(err).Error("Payment gateway unavailable")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "gateway_unavailable", Message: "Payment gateway is unavailable"})
	default:
		logger.WithError(err).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "An internal error occurred"})
	}
}

// canAccessBooking reports whether the caller owns the booking or holds an
// operations role
func canAccessBooking(c *gin.Context, ownerID uuid.UUID) bool {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		return false
	}
	if userCtx.UserID == ownerID {
		return true
	}
	for _, role := range userCtx.Roles {
		if role == "ops" || role == "admin" {
			return true
		}
	}
	return false
}

// parseUUIDParam parses a UUID path parameter, writing a 400 on failure
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name + " format",
		})
		return uuid.Nil, false
	}
	return parsed, true
}
