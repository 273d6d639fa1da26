package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking engine tuning
	PlatformFeePercent  int
	HoldDurationMinutes int
	PaymentTimeout      time.Duration
	ReminderLeadTime    time.Duration
	SweepInterval       time.Duration
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int

	// Availability defaults
	SlotGranularityMinutes int
	MinimumNoticeHours     int
	MaxAdvanceDays         int
	DefaultTimezone        string
	AvailabilityCacheTTL   time.Duration

	// Notification senders
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AWSRegion         string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PlatformFeePercent:  getEnvAsInt("PLATFORM_FEE_PERCENT", 10),
		HoldDurationMinutes: getEnvAsInt("HOLD_DURATION_MINUTES", 10),
		PaymentTimeout:      getEnvAsDuration("PAYMENT_TIMEOUT", 15*time.Minute),
		ReminderLeadTime:    getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),
		SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getEnvAsInt("OUTBOX_BATCH_SIZE", 25),

		SlotGranularityMinutes: getEnvAsInt("SLOT_GRANULARITY_MINUTES", 15),
		MinimumNoticeHours:     getEnvAsInt("MINIMUM_NOTICE_HOURS", 2),
		MaxAdvanceDays:         getEnvAsInt("MAX_ADVANCE_DAYS", 60),
		DefaultTimezone:        getEnv("DEFAULT_TIMEZONE", "UTC"),
		AvailabilityCacheTTL:   getEnvAsDuration("AVAILABILITY_CACHE_TTL", time.Minute),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "log"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
