package config

import (
	"os"
	"path/filepath"
	"testing"

	"furnidesk/internal/constants"
	"furnidesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonConfig = `{
	"server": {"port": 9000, "rateLimitPerSecond": 5, "maxRequestSize": "256 KB"},
	"database": {"path": "data/furnidesk.db"},
	"whatsapp": {"enabled": true, "api_base_url": "https://waha.example.com", "session_name": "showroom"},
	"delivery": {"simulateDelivery": true, "deliveredDelayMs": 250},
	"retry": {"initialBackoffMs": 100, "maxBackoffMs": 800, "maxAttempts": 4},
	"log_level": "debug"
}`

const yamlConfig = `
server:
  port: 9100
database:
  path: data/furnidesk.db
delivery:
  readDelayMs: 1500
log_level: warn
demo: true
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"FURNIDESK_DB_PATH", "WHATSAPP_API_URL", "WHATSAPP_API_KEY",
		"FURNIDESK_WHATSAPP_WEBHOOK_SECRET", "PORT", "FURNIDESK_DEMO", "FURNIDESK_ENV"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeConfig(t, "furnidesk.json", jsonConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.RateLimitPerSecond)
	assert.Equal(t, constants.DefaultRateLimitBurst, cfg.Server.RateLimitBurst)
	assert.Equal(t, int64(256000), cfg.Server.MaxRequestBytes)
	assert.Equal(t, "data/furnidesk.db", cfg.Database.Path)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, "showroom", cfg.WhatsApp.SessionName)
	assert.Equal(t, constants.DefaultWhatsAppTimeoutMs, cfg.WhatsApp.TimeoutMs)
	assert.True(t, cfg.Delivery.SimulateDelivery)
	assert.Equal(t, 250, cfg.Delivery.DeliveredDelayMs)
	assert.Equal(t, constants.DefaultReadDelayMs, cfg.Delivery.ReadDelayMs)
	assert.Equal(t, models.RetryConfig{InitialBackoffMs: 100, MaxBackoffMs: 800, MaxAttempts: 4}, cfg.Retry)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"furnidesk.yaml", "furnidesk.yml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, name, yamlConfig))
			require.NoError(t, err)
			assert.Equal(t, 9100, cfg.Server.Port)
			assert.Equal(t, 1500, cfg.Delivery.ReadDelayMs)
			assert.Equal(t, "warn", cfg.LogLevel)
			assert.True(t, cfg.Demo)
			assert.False(t, cfg.WhatsApp.Enabled)
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FURNIDESK_DB_PATH", "/var/lib/furnidesk/override.db")
	t.Setenv("WHATSAPP_API_URL", "https://wa.override.example.com")
	t.Setenv("WHATSAPP_API_KEY", "key-123")
	t.Setenv("FURNIDESK_WHATSAPP_WEBHOOK_SECRET", "override_secret")
	t.Setenv("PORT", "7070")
	t.Setenv("FURNIDESK_DEMO", "true")

	cfg, err := LoadConfig(writeConfig(t, "furnidesk.yaml", "log_level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/furnidesk/override.db", cfg.Database.Path)
	assert.Equal(t, "https://wa.override.example.com", cfg.WhatsApp.APIBaseURL)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, "key-123", cfg.WhatsApp.APIKey)
	assert.Equal(t, "override_secret", cfg.WhatsApp.WebhookSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Demo)
	assert.True(t, cfg.Delivery.SimulateDelivery)
}

func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{"malformed json", "c.json", `{"server": `, "failed to parse config"},
		{"malformed yaml", "c.yaml", "server: [", "failed to parse config"},
		{"whatsapp without url", "c.json", `{"whatsapp": {"enabled": true}}`, "missing WhatsApp API URL"},
		{"bad port", "c.json", `{"server": {"port": 70000}}`, "invalid server port"},
		{"bad size", "c.json", `{"server": {"maxRequestSize": "lots"}}`, "invalid maxRequestSize"},
		{"negative delay", "c.json", `{"delivery": {"readDelayMs": -1}}`, "must not be negative"},
		{"backoff order", "c.json", `{"retry": {"initialBackoffMs": 900, "maxBackoffMs": 100}}`, "must not be below"},
		{"bad log level", "c.json", `{"log_level": "loud"}`, "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := LoadConfig("../etc/furnidesk.json")
	assert.ErrorContains(t, err, "invalid config path")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, int64(constants.MaxRequestBodyBytes), cfg.Server.MaxRequestBytes)
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultStaleThresholdSec, cfg.Delivery.StaleThresholdSec)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.WhatsApp.Enabled)

	t.Setenv("FURNIDESK_DEMO", "1")
	cfg, err = Default()
	require.NoError(t, err)
	assert.True(t, cfg.Demo)
	assert.Empty(t, cfg.Database.Path, "demo mode runs in memory")
}

func TestValidateSecurity(t *testing.T) {
	longSecret := "0123456789abcdef0123456789abcdef"
	tests := []struct {
		name    string
		env     string
		config  models.Config
		wantErr string
	}{
		{"development without secret", "", models.Config{WhatsApp: models.WhatsAppConfig{Enabled: true}}, ""},
		{"production without whatsapp", "production", models.Config{LogLevel: "info"}, ""},
		{"production missing secret", "production", models.Config{WhatsApp: models.WhatsAppConfig{Enabled: true}}, "webhook secret is required"},
		{"production short secret", "production", models.Config{WhatsApp: models.WhatsAppConfig{Enabled: true, WebhookSecret: "short"}}, "at least 32 characters"},
		{"production debug logging", "production", models.Config{LogLevel: "debug", WhatsApp: models.WhatsAppConfig{Enabled: true, WebhookSecret: longSecret}}, "debug logging"},
		{"production demo", "production", models.Config{Demo: true}, "demo mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FURNIDESK_ENV", tt.env)
			err := validateSecurity(&tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
