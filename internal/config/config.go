// Package config defines the process configuration for the admin console API
// and the consolectl CLI. Configuration is loaded once at startup and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SecretString is a string that is redacted when printed or marshalled.
type SecretString string

const redacted = "***REDACTED***"

func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// MarshalJSON redacts the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// Unmask returns the raw secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// Config is the top-level configuration struct.
// Sub-components receive only the config subset they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod test"`
	Service     string `envconfig:"SERVICE_NAME" default:"subadmin-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Mock          MockConfig
	Billing       BillingConfig
	Auth          AuthConfig
	AWS           AWSConfig
	Observability ObservabilityConfig
	Notify        NotifyConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// MockConfig controls the in-memory data layer.
type MockConfig struct {
	LatencyEnabled bool `envconfig:"MOCK_LATENCY_ENABLED" default:"true"`
	// LatencyScale multiplies every simulated delay; 0.5 halves them.
	LatencyScale float64 `envconfig:"MOCK_LATENCY_SCALE" default:"1" validate:"gte=0"`
}

// BillingConfig holds quotation and invoice defaults.
type BillingConfig struct {
	OverdueCheckInterval time.Duration `envconfig:"OVERDUE_CHECK_INTERVAL" default:"15s" validate:"gt=0"`
	PaymentTerms         time.Duration `envconfig:"PAYMENT_TERMS" default:"360h" validate:"gt=0"`
	DefaultCurrency      string        `envconfig:"DEFAULT_CURRENCY" default:"INR" validate:"len=3"`
	DefaultTaxRate       string        `envconfig:"DEFAULT_TAX_RATE" default:"18" validate:"numeric"`
}

// TaxRate parses DefaultTaxRate. The validator guarantees it is numeric.
func (b BillingConfig) TaxRate() decimal.Decimal {
	d, err := decimal.NewFromString(b.DefaultTaxRate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AuthConfig holds the role lookup settings. There are no credentials.
type AuthConfig struct {
	EnforcePermissions bool   `envconfig:"ENFORCE_PERMISSIONS" default:"false"`
	DefaultUserID      string `envconfig:"DEFAULT_USER_ID" default:"usr_005" validate:"required"`
}

// AWSConfig holds regional configuration and optional resource identifiers.
type AWSConfig struct {
	Region         string `envconfig:"AWS_REGION" default:"us-east-1"`
	EventsQueueURL string `envconfig:"EVENTS_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=none prometheus cloudwatch"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SubAdmin"`
}

// NotifyConfig holds settings for outbound delivery notifications.
type NotifyConfig struct {
	WebhookURL    string        `envconfig:"NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret SecretString  `envconfig:"NOTIFY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s" validate:"gt=0"`
	QueueSize     int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"64" validate:"gt=0"`
	UserAgent     string        `envconfig:"NOTIFY_USER_AGENT" default:"SubAdmin-Notifier/1.0"`

	// AllowPrivateTargets lets the webhook reach loopback and private ranges.
	AllowPrivateTargets bool `envconfig:"NOTIFY_ALLOW_PRIVATE_TARGETS" default:"false"`
	MaxRedirects        int  `envconfig:"NOTIFY_MAX_REDIRECTS" default:"3" validate:"gte=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
