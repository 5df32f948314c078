package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}

func TestConfig_SecretsNeverSerialized(t *testing.T) {
	cfg := Config{WhatsApp: WhatsAppConfig{Enabled: true, APIBaseURL: "http://waha:3000", APIKey: "super-secret-key"}}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-key")

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "super-secret-key")
}

func TestConfig_YAMLKeys(t *testing.T) {
	raw := `
server:
  port: 9090
  maxRequestSize: 2 MB
whatsapp:
  enabled: true
  api_base_url: http://waha:3000
delivery:
  simulateDelivery: true
  readDelayMs: 500
retry:
  maxAttempts: 4
log_level: debug
demo: true
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "2 MB", cfg.Server.MaxRequestSize)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, "http://waha:3000", cfg.WhatsApp.APIBaseURL)
	assert.True(t, cfg.Delivery.SimulateDelivery)
	assert.Equal(t, 500, cfg.Delivery.ReadDelayMs)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Demo)
}
