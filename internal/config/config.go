// Package config defines the configuration structure for the Hel.io payment
// webhook service. Configuration is loaded once at process start (or Lambda
// cold start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"heliogate/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for redacted values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the subset they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"heliogate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	// RunMode selects the host: "http" runs a server, "lambda" serves API
	// Gateway proxy events.
	RunMode string `envconfig:"RUN_MODE" default:"http" validate:"oneof=http lambda"`

	Server        ServerConfig
	Database      DatabaseConfig
	Gateway       GatewayConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Ledger        LedgerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	// MaxBodyBytes caps decoded webhook bodies.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"gt=0"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// GatewayConfig holds the Hel.io gateway settings an operator edits in the
// billing system's gateway screen.
type GatewayConfig struct {
	// Name is the gateway identity stored with every payment.
	Name string `envconfig:"HELIO_GATEWAY_NAME" default:"helio" validate:"required"`

	// WebhookSecret is deliberately not required: a missing secret is an
	// operator error answered per delivery with 400, not a boot failure.
	WebhookSecret   SecretString `envconfig:"HELIO_WEBHOOK_SECRET"`
	SignatureHeader string       `envconfig:"HELIO_SIGNATURE_HEADER" default:"X-Helio-Signature" validate:"required"`
	Enabled         bool         `envconfig:"HELIO_GATEWAY_ENABLED" default:"true"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// PaymentEventsQueueURL receives payment.applied messages. Empty disables
	// publishing.
	PaymentEventsQueueURL string `envconfig:"SQS_PAYMENT_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"HelioGate"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// LedgerConfig tunes the circuit breaker in front of the ledger database.
type LedgerConfig struct {
	BreakerFailures uint32        `envconfig:"LEDGER_BREAKER_FAILURES" default:"5" validate:"gt=0"`
	BreakerTimeout  time.Duration `envconfig:"LEDGER_BREAKER_TIMEOUT" default:"30s"`
	BreakerInterval time.Duration `envconfig:"LEDGER_BREAKER_INTERVAL" default:"60s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildTime string `ignored:"true"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their
	// target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
