package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"furnidesk/internal/constants"
	"furnidesk/internal/models"
	"furnidesk/internal/security"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrMissingWhatsAppURL = models.ConfigError{Message: "missing WhatsApp API URL"}

// LoadConfig reads a JSON or YAML file (by extension), fills defaults and
// applies environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &config)
	default:
		err = json.Unmarshal(file, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return finish(&config)
}

// Default returns the configuration used when no file is given.
func Default() (*models.Config, error) {
	return finish(&models.Config{})
}

func finish(config *models.Config) (*models.Config, error) {
	applyEnvironmentOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	if err := validateSecurity(config); err != nil {
		return nil, err
	}

	return config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" && !c.Demo {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.WhatsApp.Enabled && c.WhatsApp.APIBaseURL == "" {
		return ErrMissingWhatsAppURL
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RateLimitPerSecond <= 0 {
		c.Server.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.Server.MaxRequestSize == "" {
		c.Server.MaxRequestBytes = constants.MaxRequestBodyBytes
	} else {
		size, err := humanize.ParseBytes(c.Server.MaxRequestSize)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid maxRequestSize %q: %v", c.Server.MaxRequestSize, err)}
		}
		if size == 0 {
			return models.ConfigError{Message: "maxRequestSize must be positive"}
		}
		c.Server.MaxRequestBytes = int64(size) // #nosec G115 - request limits are far below MaxInt64
	}

	if c.WhatsApp.SessionName == "" {
		c.WhatsApp.SessionName = constants.DefaultWhatsAppSession
	}
	if c.WhatsApp.TimeoutMs <= 0 {
		c.WhatsApp.TimeoutMs = constants.DefaultWhatsAppTimeoutMs
	}

	if c.Delivery.DeliveredDelayMs < 0 || c.Delivery.ReadDelayMs < 0 {
		return models.ConfigError{Message: "delivery delays must not be negative"}
	}
	if c.Delivery.DeliveredDelayMs == 0 {
		c.Delivery.DeliveredDelayMs = constants.DefaultDeliveredDelayMs
	}
	if c.Delivery.ReadDelayMs == 0 {
		c.Delivery.ReadDelayMs = constants.DefaultReadDelayMs
	}
	if c.Delivery.StaleThresholdSec <= 0 {
		c.Delivery.StaleThresholdSec = constants.DefaultStaleThresholdSec
	}
	if c.Delivery.MonitorIntervalSec <= 0 {
		c.Delivery.MonitorIntervalSec = constants.DefaultMonitorIntervalSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry maxBackoffMs must not be below initialBackoffMs"}
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log_level %q", c.LogLevel)}
	}

	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			c.Tracing.ServiceName = "furnidesk"
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			c.Tracing.SampleRate = 1
		}
		if !c.Tracing.UseStdout && c.Tracing.OTLPEndpoint == "" {
			c.Tracing.OTLPEndpoint = "localhost:4318"
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("FURNIDESK_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if url := os.Getenv("WHATSAPP_API_URL"); url != "" {
		c.WhatsApp.APIBaseURL = url
		c.WhatsApp.Enabled = true
	}
	// SECURITY: API keys and webhook secrets only come from the environment
	if key := os.Getenv("WHATSAPP_API_KEY"); key != "" {
		c.WhatsApp.APIKey = key
	}
	if secret := os.Getenv("FURNIDESK_WHATSAPP_WEBHOOK_SECRET"); secret != "" {
		c.WhatsApp.WebhookSecret = secret
	}

	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		c.Server.Port = port
	}

	if demo, err := strconv.ParseBool(os.Getenv("FURNIDESK_DEMO")); err == nil {
		c.Demo = demo
		if demo {
			c.Delivery.SimulateDelivery = true
		}
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("FURNIDESK_ENV") == "production"

	if isProduction {
		if c.WhatsApp.Enabled {
			if c.WhatsApp.WebhookSecret == "" {
				return models.ConfigError{Message: "WhatsApp webhook secret is required in production (set FURNIDESK_WHATSAPP_WEBHOOK_SECRET environment variable)"}
			}
			if len(c.WhatsApp.WebhookSecret) < 32 {
				return models.ConfigError{Message: "WhatsApp webhook secret must be at least 32 characters long"}
			}
		}

		if c.LogLevel == "debug" || c.LogLevel == "trace" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}

		if c.Demo {
			return models.ConfigError{Message: "demo mode cannot run in production"}
		}
	} else if c.WhatsApp.Enabled && c.WhatsApp.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: WhatsApp webhook secret not set. Set FURNIDESK_WHATSAPP_WEBHOOK_SECRET environment variable for security.\n")
	}

	return nil
}
