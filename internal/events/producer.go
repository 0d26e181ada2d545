package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event types published on the booking topic
const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventTicketIssued     = "ticket_issued"
	EventPointsAwarded    = "points_awarded"
)

// BookingEvent is the payload published for every booking lifecycle change.
// Downstream consumers (notifications, analytics) key on the booking id.
type BookingEvent struct {
	Type             string    `json:"type"`
	BookingID        uuid.UUID `json:"booking_id"`
	BookingReference string    `json:"booking_reference,omitempty"`
	FlightInstanceID uuid.UUID `json:"flight_instance_id,omitempty"`
	UserID           uuid.UUID `json:"user_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	PaymentState     string    `json:"payment_state,omitempty"`
	Points           int64     `json:"points,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Producer publishes booking events to kafka. A nil *Producer is valid and
// drops events, so environments without brokers run unchanged.
type Producer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewProducer creates a producer for the booking topic. Returns nil when no
// brokers are configured.
func NewProducer(brokers []string, topic string, logger *logrus.Logger) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish sends one event keyed by booking id. Publish failures are reported
// to the caller, which logs and continues; events are best-effort relative to
// the committed database state.
func (p *Producer) Publish(ctx context.Context, event BookingEvent) error {
	if p == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID.String()),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"type":       event.Type,
		"booking_id": event.BookingID,
	}).Debug("Booking event published")
	return nil
}

// Close flushes and closes the underlying writer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
