package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/middleware"
	"github.com/skylinkair/booking-backend/internal/models"
	"github.com/skylinkair/booking-backend/internal/services"
)

// LoyaltyHandler handles frequent flyer HTTP requests
type LoyaltyHandler struct {
	loyaltySvc *services.LoyaltyService
	logger     *logrus.Logger
}

// NewLoyaltyHandler creates a new loyalty handler
func NewLoyaltyHandler(loyaltySvc *services.LoyaltyService, logger *logrus.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{loyaltySvc: loyaltySvc, logger: logger}
}

// GetAccount handles GET /api/v1/loyalty/account
func (h *LoyaltyHandler) GetAccount(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	account, err := h.loyaltySvc.GetAccount(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// ManualAdjust handles POST /api/v1/loyalty/adjustments (ops only)
func (h *LoyaltyHandler) ManualAdjust(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.ManualAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	account, err := h.loyaltySvc.ManualAdjust(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}
