package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/middleware"
	"github.com/skylinkair/booking-backend/internal/models"
	"github.com/skylinkair/booking-backend/internal/services"
)

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookingSvc *services.BookingService
	seatInv    *services.SeatInventoryService
	logger     *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingSvc *services.BookingService, seatInv *services.SeatInventoryService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc, seatInv: seatInv, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	booking, err := h.bookingSvc.CreateBooking(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
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

	c.JSON(http.StatusOK, details)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
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
			Message: "You don't have permission to cancel this booking",
		})
		return
	}

	booking, err := h.bookingSvc.CancelBooking(c.Request.Context(), bookingID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// GetAvailableSeats handles GET /api/v1/flight-instances/:id/available-seats
func (h *BookingHandler) GetAvailableSeats(c *gin.Context) {
	flightInstanceID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var cabinClassID *uuid.UUID
	if raw := c.Query("cabin_class_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_id",
				Message: "Invalid cabin_class_id format",
			})
			return
		}
		cabinClassID = &parsed
	}

	seats, err := h.seatInv.GetAvailableSeats(c.Request.Context(), flightInstanceID, cabinClassID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flight_instance_id": flightInstanceID,
		"seats":              seats,
		"total":              len(seats),
	})
}
