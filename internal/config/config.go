// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field or section
// corresponds to a group of environment variables.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // zap level name (debug, info, warn, error)
	JWTSecret string // secret used to verify access tokens

	DB        DBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Broker    BrokerConfig
	Booking   BookingConfig
	Pricing   PricingConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User string
	Pass string // optional
	Host string
	Port string
	Name string
}

// BookingConfig controls the booking engine and its background workers.
type BookingConfig struct {
	PaymentGrace        time.Duration // time a PENDING booking waits for payment
	OutboxPollInterval  time.Duration // how often the relay looks for unpublished events
	OutboxBatchSize     int           // events claimed per relay round
	ExpirySweepInterval time.Duration // 0 disables the background expiry sweeper
	DedupeTTL           time.Duration // how long processed event ids are remembered
	NotifyFile          string        // file the worker appends notifications to
}

// PricingConfig points at the price table and the cinema's time zone.
type PricingConfig struct {
	File     string // YAML price table; empty uses the built-in table
	TimeZone string // IANA zone used to decide day type and time band
}

// Location resolves TimeZone, falling back to UTC.
func (p PricingConfig) Location() *time.Location {
	if p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration values from environment variables.  Required
// variables that are unset or empty are collected and reported together.
func Load() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:       envStr("APP_ENV", "dev"),
		Port:      envStr("APP_PORT", "8080"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		JWTSecret: must("JWT_SECRET"),
		DB: DBConfig{
			User: must("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: must("DB_HOST"),
			Port: envStr("DB_PORT", "3306"),
			Name: must("DB_NAME"),
		},
		Redis:     loadRedisConfig(),
		RateLimit: loadRateLimitConfig(),
		Cache:     loadCacheConfig(),
		Broker:    loadBrokerConfig(),
		Booking: BookingConfig{
			PaymentGrace:        envDur("PAYMENT_GRACE", 5*time.Minute),
			OutboxPollInterval:  envDur("OUTBOX_POLL_INTERVAL", 2*time.Second),
			OutboxBatchSize:     envInt("OUTBOX_BATCH_SIZE", 100),
			ExpirySweepInterval: envDur("EXPIRY_SWEEP_INTERVAL", 0),
			DedupeTTL:           envDur("EVENT_DEDUPE_TTL", 24*time.Hour),
			NotifyFile:          os.Getenv("NOTIFY_FILE"),
		},
		Pricing: PricingConfig{
			File:     os.Getenv("PRICING_FILE"),
			TimeZone: envStr("PRICING_TIMEZONE", "UTC"),
		},
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.Booking.PaymentGrace <= 0 {
		return Config{}, fmt.Errorf("PAYMENT_GRACE must be positive, got %s", cfg.Booking.PaymentGrace)
	}
	if cfg.Booking.OutboxBatchSize < 1 {
		cfg.Booking.OutboxBatchSize = 1
	}
	return cfg, nil
}
