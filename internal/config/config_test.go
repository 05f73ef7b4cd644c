package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("WHATSAPP_SEND_ATTEMPTS", "")
	t.Setenv("BUSINESS_TIMEZONE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 1, cfg.SendAttempts)
	assert.Equal(t, "https://graph.facebook.com", cfg.WhatsAppAPIBase)
	assert.Equal(t, time.Local, cfg.BusinessLocation)
	assert.Equal(t, time.Minute, cfg.BroadcastInterval)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("WHATSAPP_API_BASE", "http://localhost:1234/")
	t.Setenv("WHATSAPP_SEND_ATTEMPTS", "3")
	t.Setenv("BUSINESS_TIMEZONE", "Europe/Amsterdam")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.nl, ,https://b.nl")
	t.Setenv("OTEL_ENABLED", "yes")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "http://localhost:1234", cfg.WhatsAppAPIBase)
	assert.Equal(t, 3, cfg.SendAttempts)
	assert.Equal(t, "Europe/Amsterdam", cfg.BusinessLocation.String())
	assert.Equal(t, []string{"https://a.nl", "https://b.nl"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.OTEL.Enabled)
	assert.Contains(t, cfg.PostgresDSN(), "port=5432")
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad driver", "DB_DRIVER", "mysql"},
		{"zero attempts", "WHATSAPP_SEND_ATTEMPTS", "0"},
		{"bad timezone", "BUSINESS_TIMEZONE", "Mars/Olympus"},
		{"bad burst", "RATE_BURST", "0"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
