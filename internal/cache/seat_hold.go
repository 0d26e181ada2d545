package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/skylinkair/booking-backend/internal/config"
)

// SeatHoldCache keeps short-lived advisory holds on (flight, seat) pairs so
// most concurrent reservation races are resolved before touching the
// database. The seat_assignments unique constraint stays authoritative; a
// lost or expired hold can never cause a double booking.
type SeatHoldCache struct {
	client *redis.Client
}

// NewSeatHoldCache connects to redis. Returns an error when the server is
// unreachable; callers may run without the cache entirely.
func NewSeatHoldCache(ctx context.Context, cfg config.RedisConfig) (*SeatHoldCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &SeatHoldCache{client: client}, nil
}

// AcquireHold takes an advisory hold on one seat. Returns false when another
// in-flight reservation already holds it.
func (c *SeatHoldCache) AcquireHold(ctx context.Context, flightInstanceID, seatID uuid.UUID, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, seatHoldKey(flightInstanceID, seatID), "held", ttl).Result()
}

// ReleaseHold drops an advisory hold. Safe to call for holds that already
// expired.
func (c *SeatHoldCache) ReleaseHold(ctx context.Context, flightInstanceID, seatID uuid.UUID) error {
	return c.client.Del(ctx, seatHoldKey(flightInstanceID, seatID)).Err()
}

// Close releases the redis connection
func (c *SeatHoldCache) Close() error {
	return c.client.Close()
}

func seatHoldKey(flightInstanceID, seatID uuid.UUID) string {
	return fmt.Sprintf("hold:flight:%s:seat:%s", flightInstanceID, seatID)
}
