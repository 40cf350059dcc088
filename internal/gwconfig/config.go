// Package gwconfig assembles the gateway's configuration the way
// config.DefaultConfig() + environment overlay works in the donor: a struct
// built from defaults then overridden from the environment, read once at
// startup (spec §9 "no back-edges" — this gateway does not wire the donor's
// config.HotReloadManager; nothing in the spec calls for hot reload).
package gwconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig configures the GORM-backed store (spec §6.4).
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// LogConfig configures zap (spec A.1).
type LogConfig struct {
	Level  string
	Format string // "json" | "console"
}

// TelemetryConfig configures the OTel SDK (spec B: go.opentelemetry.io/otel*).
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// ProviderConfig is the shared shape for an upstream's base URL/timeout
// override (spec A.3's "provider base URLs/timeouts").
type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Config is the gateway's full runtime configuration (spec §6.6).
type Config struct {
	Port                int
	SiteURL             string
	ClientURLs          []string
	CORSAllowedOrigins  string
	EncryptionKey       string // 64 hex chars, spec §6.5
	SessionHMACKey      string // loaded from SESSION_HMAC_KEY; no component of this gateway reads it
	StoreEndpoint       string // external persistent store / session-validation endpoint the dashboard surface forwards to (spec §6.3, out of this core's scope)
	StoreAdminKey       string

	Database  DatabaseConfig
	Log       LogConfig
	Telemetry TelemetryConfig

	Gemini     ProviderConfig
	VertexAI   ProviderConfig
	OpenRouter ProviderConfig
	Anthropic  ProviderConfig
}

// Default returns the baseline configuration before environment overlay.
func Default() *Config {
	return &Config{
		Port:               8080,
		CORSAllowedOrigins: "*",
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "llmgateway",
			SampleRate:  0.1,
		},
		Gemini:     ProviderConfig{Timeout: 60 * time.Second},
		VertexAI:   ProviderConfig{Timeout: 60 * time.Second},
		OpenRouter: ProviderConfig{Timeout: 60 * time.Second},
		Anthropic:  ProviderConfig{Timeout: 120 * time.Second},
	}
}

// Load builds Config from Default() overridden by environment variables
// (spec §6.6 and A.3's named variable list).
func Load() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = port
	}
	cfg.SiteURL = os.Getenv("SITE_URL")
	if v := os.Getenv("CLIENT_URLS"); v != "" {
		cfg.ClientURLs = strings.Split(v, ",")
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = v
	}
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	cfg.SessionHMACKey = os.Getenv("SESSION_HMAC_KEY")
	cfg.StoreEndpoint = os.Getenv("STORE_ENDPOINT")
	cfg.StoreAdminKey = os.Getenv("STORE_ADMIN_KEY")

	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("OTEL_ENABLED"); v == "true" {
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}

	loadProviderOverride(&cfg.Gemini, "GEMINI")
	loadProviderOverride(&cfg.VertexAI, "VERTEX_AI")
	loadProviderOverride(&cfg.OpenRouter, "OPENROUTER")
	loadProviderOverride(&cfg.Anthropic, "ANTHROPIC_AGENT")

	return cfg, nil
}

func loadProviderOverride(pc *ProviderConfig, prefix string) {
	if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
		pc.BaseURL = v
	}
	if v := os.Getenv(prefix + "_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			pc.Timeout = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks the required environment variables named in spec §6.6.
func (c *Config) Validate() error {
	if c.SiteURL == "" {
		return fmt.Errorf("SITE_URL is required")
	}
	if len(c.ClientURLs) == 0 {
		return fmt.Errorf("CLIENT_URLS is required")
	}
	if len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.StoreEndpoint == "" {
		return fmt.Errorf("STORE_ENDPOINT is required")
	}
	if c.StoreAdminKey == "" {
		return fmt.Errorf("STORE_ADMIN_KEY is required")
	}
	return nil
}
