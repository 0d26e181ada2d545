package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/cache"
	"github.com/skylinkair/booking-backend/internal/config"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/events"
	"github.com/skylinkair/booking-backend/internal/handlers"
	"github.com/skylinkair/booking-backend/internal/middleware"
	"github.com/skylinkair/booking-backend/internal/services"
	"github.com/skylinkair/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SkyLink Air Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Advisory seat hold cache is optional; without it every race falls
	// through to the seat_assignments constraint.
	var seatHolds *cache.SeatHoldCache
	if cfg.Redis.Addr != "" {
		seatHolds, err = cache.NewSeatHoldCache(context.Background(), cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, seat holds disabled")
			seatHolds = nil
		} else {
			defer seatHolds.Close()
			logger.Info("Seat hold cache connected")
		}
	}

	// Event producer is optional as well
	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BookingTopic, logger)
	if producer != nil {
		defer producer.Close()
		logger.Info("Booking event producer connected")
	}

	// Initialize repositories
	bookingRepo := database.NewBookingRepository(db, logger)
	flightRepo := database.NewFlightRepository(db)
	seatRepo := database.NewSeatRepository(db, logger)
	paymentRepo := database.NewPaymentRepository(db, logger)
	auditRepo := database.NewPaymentAuditRepository(db, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	loyaltyRepo := database.NewLoyaltyRepository(db, logger)
	fareRepo := database.NewFareRepository(db, logger)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	gatewaySvc := services.NewAeroPayService(&cfg.Payment, logger)
	seatInvSvc := services.NewSeatInventoryService(seatRepo, flightRepo, seatHolds, cfg.Booking.SeatHoldTTL, logger)
	ticketingSvc := services.NewTicketingService(db, ticketRepo, bookingRepo, flightRepo, seatRepo, producer, logger)
	loyaltySvc := services.NewLoyaltyService(db, loyaltyRepo, bookingRepo, paymentRepo, producer, cfg.Booking.PointsPerCurrency, logger)
	bookingSvc := services.NewBookingService(db, bookingRepo, flightRepo, seatInvSvc, ticketingSvc, loyaltySvc, producer, logger)
	paymentSvc := services.NewPaymentService(db, paymentRepo, bookingRepo, fareRepo, auditRepo, gatewaySvc, bookingSvc, cfg.Payment.Currency, logger)
	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingSvc, seatInvSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentSvc, bookingSvc, logger)
	ticketHandler := handlers.NewTicketHandler(ticketingSvc, logger)
	loyaltyHandler := handlers.NewLoyaltyHandler(loyaltySvc, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Gateway webhook (authenticated by HMAC signature, not JWT)
	router.POST("/webhooks/aeropay", paymentHandler.Webhook)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Seat availability is public
		v1.GET("/flight-instances/:id/available-seats", bookingHandler.GetAvailableSeats)

		// Booking routes (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:id/payments", paymentHandler.ListPayments)
		}

		// Payment routes (protected)
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthMiddleware(jwtService))
		{
			payments.POST("/intents", paymentHandler.CreateIntent)
			payments.POST("/:id/refund", middleware.RequireRole("ops", "admin"), paymentHandler.Refund)
			payments.GET("/:id/audit", middleware.RequireRole("ops", "admin"), paymentHandler.AuditTrail)
		}

		// Ticket routes (protected)
		tickets := v1.Group("/tickets")
		tickets.Use(middleware.AuthMiddleware(jwtService))
		{
			tickets.GET("/:id", ticketHandler.GetTicket)
			tickets.POST("/:id/check-in", ticketHandler.CheckIn)
			tickets.GET("/:id/boarding-pass", ticketHandler.BoardingPassPDF)
			tickets.POST("/:id/void", middleware.RequireRole("ops", "admin"), ticketHandler.VoidTicket)
			tickets.POST("/:id/scan", middleware.RequireRole("ops", "gate", "admin"), ticketHandler.Scan)
		}

		// Loyalty routes (protected)
		loyalty := v1.Group("/loyalty")
		loyalty.Use(middleware.AuthMiddleware(jwtService))
		{
			loyalty.GET("/account", loyaltyHandler.GetAccount)
			loyalty.POST("/adjustments", middleware.RequireRole("ops", "admin"), loyaltyHandler.ManualAdjust)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
