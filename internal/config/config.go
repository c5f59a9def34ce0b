// Package config defines the global configuration structure for the
// rainbowwatch services. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// exit immediately on startup (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct shared by the API, the
// capture worker, and the monitor. Sub-components receive only the specific
// config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"rainbowwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Weather  WeatherConfig
	Monitor  MonitorConfig
	Push     PushConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// RedisConfig holds the connection settings for the shared TTL cache used
// for throttle markers and map-query caching. The cache is best-effort:
// losing it causes duplicate alerts or cache misses, never data corruption.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" validate:"required"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	CaptureQueueURL   string `envconfig:"SQS_CAPTURE_JOBS" validate:"required,url"`
	ScheduledQueueURL string `envconfig:"SQS_SCHEDULED_NOTIFICATIONS" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// WeatherConfig holds the external weather/radar provider settings. An empty
// APIKey or BaseURL is a configuration error surfaced on first use, not at
// startup, so processes that never call the provider can still boot.
type WeatherConfig struct {
	BaseURL string        `envconfig:"WEATHER_API_BASE_URL"`
	APIKey  string        `envconfig:"WEATHER_API_KEY"`
	Timeout time.Duration `envconfig:"WEATHER_API_TIMEOUT" default:"10s"`
}

// MonitorConfig tunes the periodic condition scan.
type MonitorConfig struct {
	// SelfSchedule enables the in-process ticker fallback. Production keeps
	// this off and drives scans from an external scheduler.
	SelfSchedule bool          `envconfig:"MONITOR_SELF_SCHEDULE" default:"false"`
	Interval     time.Duration `envconfig:"MONITOR_INTERVAL" default:"15m"`
	ThrottleTTL  time.Duration `envconfig:"MONITOR_THROTTLE_TTL" default:"2h"`
}

// PushConfig holds per-platform push transport settings.
type PushConfig struct {
	FCMEndpoint   string        `envconfig:"PUSH_FCM_ENDPOINT" default:"https://fcm.googleapis.com/v1/projects/rainbowwatch/messages:send"`
	FCMAuthToken  string        `envconfig:"PUSH_FCM_AUTH_TOKEN"`
	APNSEndpoint  string        `envconfig:"PUSH_APNS_ENDPOINT" default:"https://api.push.apple.com/3/device"`
	APNSAuthToken string        `envconfig:"PUSH_APNS_AUTH_TOKEN"`
	APNSTopic     string        `envconfig:"PUSH_APNS_TOPIC" default:"io.rainbowwatch.app"`
	Timeout       time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
}
