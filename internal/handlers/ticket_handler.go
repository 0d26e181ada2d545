package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/models"
	"github.com/skylinkair/booking-backend/internal/services"
	"github.com/skylinkair/booking-backend/pkg/pdf"
)

// TicketHandler handles ticket and boarding-pass HTTP requests
type TicketHandler struct {
	ticketingSvc *services.TicketingService
	logger       *logrus.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(ticketingSvc *services.TicketingService, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{ticketingSvc: ticketingSvc, logger: logger}
}

// GetTicket handles GET /api/v1/tickets/:id
func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticketID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ticket, err := h.ticketingSvc.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// VoidTicket handles POST /api/v1/tickets/:id/void (ops only)
func (h *TicketHandler) VoidTicket(c *gin.Context) {
	ticketID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.VoidTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ticket, err := h.ticketingSvc.VoidTicket(c.Request.Context(), ticketID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// CheckIn handles POST /api/v1/tickets/:id/check-in
func (h *TicketHandler) CheckIn(c *gin.Context) {
	ticketID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	pass, err := h.ticketingSvc.GenerateBoardingPass(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"boarding_pass": pass})
}

// BoardingPassPDF handles GET /api/v1/tickets/:id/boarding-pass
func (h *TicketHandler) BoardingPassPDF(c *gin.Context) {
	ticketID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.ticketingSvc.BoardingDocumentForTicket(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	data, filename, err := pdf.RenderBoardingPass(pdf.BoardingPassData{
		PassengerName:    doc.PassengerName,
		TicketCode:       doc.TicketCode,
		BookingReference: doc.BookingReference,
		FlightNumber:     doc.FlightNumber,
		SeatNumber:       doc.SeatNumber,
		DepartureTime:    doc.DepartureTime,
	})
	if err != nil {
		h.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to render boarding pass")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "pdf_error",
			Message: "Failed to render boarding pass",
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// Scan handles POST /api/v1/tickets/:id/scan (gate agents)
func (h *TicketHandler) Scan(c *gin.Context) {
	ticketID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ticket, err := h.ticketingSvc.ScanAtGate(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}
