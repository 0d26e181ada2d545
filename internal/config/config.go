package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Booking   BookingConfig
	CORS      CORSConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the advisory seat-hold cache configuration.
// Addr may be empty; seat holds then fall back to the database constraint alone.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds the booking event stream configuration.
// Brokers may be empty; event publishing is then disabled.
type KafkaConfig struct {
	Brokers      []string
	BookingTopic string
}

// JWTConfig holds token verification configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds AeroPay gateway configuration
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // secret, used for request check values only
	WebhookSecret string // secret, used to verify inbound webhook signatures
	ReturnURL     string
	WebhookURL    string
	Currency      string
}

// BookingConfig holds booking lifecycle tunables
type BookingConfig struct {
	SeatHoldTTL       time.Duration // advisory redis hold duration
	PendingExpiry     time.Duration // how long a pending booking may wait for payment
	PointsPerCurrency int64         // loyalty points per whole currency unit spent
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// ReconcileConfig holds the sweep worker schedule
type ReconcileConfig struct {
	ExpirySchedule      string // cron spec for expiring stale pending bookings
	SideEffectsSchedule string // cron spec for re-running issuance/award
	SideEffectsWindow   time.Duration
}

// Load loads configuration from environment variables. A .env file is used
// when present; real environments set variables directly.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     getEnvInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvList("KAFKA_BROKERS"),
			BookingTopic: getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		JWT: JWTConfig{
			Secret:            os.Getenv("JWT_SECRET"),
			AccessTokenExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Payment: PaymentConfig{
			Environment:   getEnv("AEROPAY_ENVIRONMENT", "sandbox"),
			MerchantKey:   os.Getenv("AEROPAY_MERCHANT_KEY"),
			MerchantToken: os.Getenv("AEROPAY_MERCHANT_TOKEN"),
			WebhookSecret: os.Getenv("AEROPAY_WEBHOOK_SECRET"),
			ReturnURL:     os.Getenv("AEROPAY_RETURN_URL"),
			WebhookURL:    os.Getenv("AEROPAY_WEBHOOK_URL"),
			Currency:      getEnv("AEROPAY_CURRENCY", "USD"),
		},
		Booking: BookingConfig{
			SeatHoldTTL:       getEnvDuration("SEAT_HOLD_TTL", 2*time.Minute),
			PendingExpiry:     getEnvDuration("BOOKING_PENDING_EXPIRY", 30*time.Minute),
			PointsPerCurrency: int64(getEnvInt("LOYALTY_POINTS_PER_UNIT", 1)),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		},
		Reconcile: ReconcileConfig{
			ExpirySchedule:      getEnv("RECONCILE_EXPIRY_SCHEDULE", "0 */5 * * * *"),
			SideEffectsSchedule: getEnv("RECONCILE_SIDE_EFFECTS_SCHEDULE", "30 */10 * * * *"),
			SideEffectsWindow:   getEnvDuration("RECONCILE_SIDE_EFFECTS_WINDOW", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Environment == "production" && c.Payment.WebhookSecret == "" {
		return fmt.Errorf("AEROPAY_WEBHOOK_SECRET is required in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
