package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/skylinkair/booking-backend/internal/config"
	"github.com/skylinkair/booking-backend/internal/database"
	"github.com/skylinkair/booking-backend/internal/events"
	"github.com/skylinkair/booking-backend/internal/services"
)

// The reconciler runs the periodic sweeps: expiring pending bookings whose
// payment window closed and re-running idempotent confirmation side effects.
// It is deployed as its own process so sweeps survive API restarts.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SkyLink Air booking reconciler")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BookingTopic, logger)
	if producer != nil {
		defer producer.Close()
	}

	bookingRepo := database.NewBookingRepository(db, logger)
	flightRepo := database.NewFlightRepository(db)
	seatRepo := database.NewSeatRepository(db, logger)
	paymentRepo := database.NewPaymentRepository(db, logger)
	ticketRepo := database.NewTicketRepository(db, logger)
	loyaltyRepo := database.NewLoyaltyRepository(db, logger)

	// The sweeps never touch redis; expiry goes straight to the database.
	seatInvSvc := services.NewSeatInventoryService(seatRepo, flightRepo, nil, cfg.Booking.SeatHoldTTL, logger)
	ticketingSvc := services.NewTicketingService(db, ticketRepo, bookingRepo, flightRepo, seatRepo, producer, logger)
	loyaltySvc := services.NewLoyaltyService(db, loyaltyRepo, bookingRepo, paymentRepo, producer, cfg.Booking.PointsPerCurrency, logger)
	bookingSvc := services.NewBookingService(db, bookingRepo, flightRepo, seatInvSvc, ticketingSvc, loyaltySvc, producer, logger)
	reconcileSvc := services.NewReconciliationService(bookingRepo, bookingSvc, cfg.Booking.PendingExpiry, logger)

	scheduler := cron.New(cron.WithSeconds())

	if _, err := scheduler.AddFunc(cfg.Reconcile.ExpirySchedule, func() {
		reconcileSvc.ExpireStalePending(context.Background())
	}); err != nil {
		logger.Fatalf("Failed to schedule expiry sweep: %v", err)
	}

	if _, err := scheduler.AddFunc(cfg.Reconcile.SideEffectsSchedule, func() {
		reconcileSvc.EnsureSideEffects(context.Background(), cfg.Reconcile.SideEffectsWindow)
	}); err != nil {
		logger.Fatalf("Failed to schedule side effect sweep: %v", err)
	}

	scheduler.Start()
	logger.WithFields(logrus.Fields{
		"expiry_schedule":       cfg.Reconcile.ExpirySchedule,
		"side_effects_schedule": cfg.Reconcile.SideEffectsSchedule,
	}).Info("Reconciliation sweeps scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping reconciler...")
	ctx := scheduler.Stop()
	<-ctx.Done()
	logger.Info("Reconciler exited")
}
