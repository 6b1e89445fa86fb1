package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `validate:"oneof=development production test"`

	// Ticketing API
	APIBaseURL  string        `validate:"required,url"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	// Session storage
	RedisURL       string        `validate:"required"`
	SessionProfile string        `validate:"required"`
	SessionTTL     time.Duration `validate:"gt=0"`

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string `validate:"required_with=PubNubSubscribeKey"`
	PubNubChannel      string `validate:"required_with=PubNubSubscribeKey"`

	// Purchase flow
	AvailabilityConcurrency int           `validate:"gte=1,lte=64"`
	ConfirmationDelay       time.Duration `validate:"gte=0"`

	// Circuit breaker around API calls
	BreakerMaxRequests  int           `validate:"gte=1"`
	BreakerFailureRatio float64       `validate:"gt=0,lte=1"`
	BreakerTimeout      time.Duration `validate:"gt=0"`

	// Monitoring
	EnableMetrics bool
	MetricsPort   string `validate:"required_if=EnableMetrics true"`

	// Local stub of the remote service
	StubServerAddr string `validate:"required"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory, when present, fills variables that are not already
// set.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		APIBaseURL:  getEnv("TICKET_API_URL", "http://127.0.0.1:8000"),
		HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", "10s"),

		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		SessionProfile: getEnv("SESSION_PROFILE", "default"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", "720h"),

		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticketctl"),
		PubNubChannel:      getEnv("PUBNUB_CHANNEL", "event-inventory"),

		AvailabilityConcurrency: getEnvAsInt("AVAILABILITY_CONCURRENCY", 8),
		ConfirmationDelay:       getEnvAsDuration("CONFIRMATION_DELAY", "900ms"),

		BreakerMaxRequests:  getEnvAsInt("BREAKER_MAX_REQUESTS", 20),
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", "30s"),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", false),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),

		StubServerAddr: getEnv("STUB_SERVER_ADDR", "127.0.0.1:8000"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RealtimeEnabled reports whether inventory notifications can be received.
func (c *Config) RealtimeEnabled() bool {
	return c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
