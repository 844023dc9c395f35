// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Fee settings (basis points)
	BuyerFeeBps  int64
	SellerFeeBps int64
	Currency     string

	// Release timing
	PhysicalGraceHours    int64 // grace window after delivery confirmation for physical items
	NonPhysicalGraceHours int64 // grace window after proof submission for digital/ticket/service
	MilestoneReviewDays   int64 // per-milestone review window after proof submission
	SweepInterval         time.Duration
	ReconcileInterval     time.Duration

	// Payouts
	StripeAPIKey  string // empty disables external payouts (dev mode)
	PayoutTimeout time.Duration

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPS  int
	AdminSecret   string
	WebhookSecret string
}

// Defaults
const (
	DefaultPort                  = "8080"
	DefaultEnv                   = "development"
	DefaultLogLevel              = "info"
	DefaultCurrency              = "USD"
	DefaultBuyerFeeBps           = 300
	DefaultSellerFeeBps          = 500
	DefaultPhysicalGraceHours    = 48
	DefaultNonPhysicalGraceHours = 24
	DefaultMilestoneReviewDays   = 3
	DefaultRateLimit             = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		BuyerFeeBps:           getEnvInt64("BUYER_FEE_BPS", DefaultBuyerFeeBps),
		SellerFeeBps:          getEnvInt64("SELLER_FEE_BPS", DefaultSellerFeeBps),
		Currency:              getEnv("CURRENCY", DefaultCurrency),
		PhysicalGraceHours:    getEnvInt64("PHYSICAL_GRACE_HOURS", DefaultPhysicalGraceHours),
		NonPhysicalGraceHours: getEnvInt64("NONPHYSICAL_GRACE_HOURS", DefaultNonPhysicalGraceHours),
		MilestoneReviewDays:   getEnvInt64("MILESTONE_REVIEW_DAYS", DefaultMilestoneReviewDays),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		ReconcileInterval:     getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		StripeAPIKey:          os.Getenv("STRIPE_API_KEY"),
		PayoutTimeout:         getEnvDuration("PAYOUT_TIMEOUT", 15*time.Second),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:          int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.BuyerFeeBps < 0 || c.BuyerFeeBps > 10000 {
		return fmt.Errorf("BUYER_FEE_BPS must be between 0 and 10000")
	}
	if c.SellerFeeBps < 0 || c.SellerFeeBps > 10000 {
		return fmt.Errorf("SELLER_FEE_BPS must be between 0 and 10000")
	}
	if c.PhysicalGraceHours <= 0 || c.NonPhysicalGraceHours <= 0 {
		return fmt.Errorf("grace period hours must be positive")
	}
	if c.MilestoneReviewDays <= 0 {
		return fmt.Errorf("MILESTONE_REVIEW_DAYS must be positive")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
