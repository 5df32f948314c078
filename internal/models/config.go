package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Delivery DeliveryConfig `json:"delivery" yaml:"delivery"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
	// Demo seeds the fixture users, groups and client chats into an in-memory store.
	Demo bool `json:"demo" yaml:"demo"`
}

type ServerConfig struct {
	Port               int      `json:"port" yaml:"port"`
	ReadTimeoutSec     int      `json:"readTimeoutSec" yaml:"readTimeoutSec"`
	WriteTimeoutSec    int      `json:"writeTimeoutSec" yaml:"writeTimeoutSec"`
	IdleTimeoutSec     int      `json:"idleTimeoutSec" yaml:"idleTimeoutSec"`
	RateLimitPerSecond float64  `json:"rateLimitPerSecond" yaml:"rateLimitPerSecond"`
	RateLimitBurst     int      `json:"rateLimitBurst" yaml:"rateLimitBurst"`
	AllowedOrigins     []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	// MaxRequestSize is a human readable size such as "1 MB".
	MaxRequestSize  string `json:"maxRequestSize" yaml:"maxRequestSize"`
	MaxRequestBytes int64  `json:"-" yaml:"-"`
}

type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// WhatsAppConfig configures the optional external send-through channel.
type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	APIBaseURL    string `json:"api_base_url" yaml:"api_base_url"`
	APIKey        string `json:"-" yaml:"-"`
	SessionName   string `json:"session_name" yaml:"session_name"`
	TimeoutMs     int    `json:"timeout_ms" yaml:"timeout_ms"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
}

// DeliveryConfig controls the delivery pipeline. SimulateDelivery enables the
// demo stand-in that feeds delivered/read acknowledgments after fixed delays.
type DeliveryConfig struct {
	SimulateDelivery   bool `json:"simulateDelivery" yaml:"simulateDelivery"`
	DeliveredDelayMs   int  `json:"deliveredDelayMs" yaml:"deliveredDelayMs"`
	ReadDelayMs        int  `json:"readDelayMs" yaml:"readDelayMs"`
	StaleThresholdSec  int  `json:"staleThresholdSec" yaml:"staleThresholdSec"`
	MonitorIntervalSec int  `json:"monitorIntervalSec" yaml:"monitorIntervalSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts" yaml:"maxAttempts"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
