package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// OTELConfig holds the OpenTelemetry exporter settings.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogPretty bool

	// Database
	DBDriver   string // sqlite|postgres
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	// WhatsApp Cloud API
	VerifyToken        string
	WhatsAppAPIBase    string
	WhatsAppAPIVersion string
	WhatsAppTimeout    time.Duration
	SendAttempts       int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	AppURL              string

	// Automations / broadcasts
	BusinessLocation  *time.Location
	BroadcastInterval time.Duration

	// Dashboard API protection
	RateRPS            float64
	RateBurst          int
	CORSAllowedOrigins []string

	OTEL OTELConfig
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		GinMode:   strings.ToLower(getEnv("GIN_MODE", "release")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty: getBool("LOG_PRETTY", false),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:     getEnv("DB_PATH", "./whatsapp.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp_inbox"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		VerifyToken:        getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBase:    strings.TrimRight(getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com"), "/"),
		WhatsAppAPIVersion: getEnv("WHATSAPP_API_VERSION", "v19.0"),
		WhatsAppTimeout:    getDuration("WHATSAPP_TIMEOUT", 10*time.Second),
		SendAttempts:       getInt("WHATSAPP_SEND_ATTEMPTS", 1),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		AppURL:              strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),

		BroadcastInterval: getDuration("BROADCAST_INTERVAL", time.Minute),

		RateRPS:            getFloat("RATE_RPS", 10),
		RateBurst:          getInt("RATE_BURST", 20),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		OTEL: OTELConfig{
			Enabled:     getBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "whatsapp-inbox"),
			SampleRatio: getFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	loc, err := loadLocation(getEnv("BUSINESS_TIMEZONE", ""))
	if err != nil {
		return nil, err
	}
	cfg.BusinessLocation = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN builds the connection string for the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if c.SendAttempts < 1 {
		return errors.New("WHATSAPP_SEND_ATTEMPTS must be >= 1")
	}
	if c.WhatsAppTimeout <= 0 {
		return errors.New("WHATSAPP_TIMEOUT must be > 0")
	}
	if c.BroadcastInterval <= 0 {
		return errors.New("BROADCAST_INTERVAL must be > 0")
	}
	if c.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// loadLocation resolves the business timezone; empty means server local time.
func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
