package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ProviderConfig carries the credentials and environment for one payment provider.
type ProviderConfig struct {
	SecretKey     string
	WebhookSecret string
	Environment   string // "sandbox" or "live"
	BaseURL       string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// EnabledProviders lists providers eligible for registration, in priority order.
	EnabledProviders []string
	// FallbackProviders is the operational allow-list consulted after a primary failure.
	FallbackProviders []string
	Providers         map[string]ProviderConfig

	AttemptBudget      time.Duration
	WebhookReplayTTL   time.Duration
	IdempotencyTTL     time.Duration
	ReliabilityWindow  time.Duration
	ReliabilityRefresh time.Duration
	AnalyticsCacheTTL  time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		EnabledProviders:   splitAndTrim(valueOrDefault(k.String("PROVIDERS"), "stripe,razorpay,paypal")),
		FallbackProviders:  splitAndTrim(k.String("FALLBACK_PROVIDERS")),
		AttemptBudget:      parseDuration(k.String("PAYMENT_ATTEMPT_BUDGET"), "30s"),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ReliabilityWindow:  parseDuration(k.String("RELIABILITY_WINDOW"), "1h"),
		ReliabilityRefresh: parseDuration(k.String("RELIABILITY_REFRESH_INTERVAL"), "1m"),
		AnalyticsCacheTTL:  parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
	}

	cfg.Providers = make(map[string]ProviderConfig, len(cfg.EnabledProviders))
	for _, name := range cfg.EnabledProviders {
		prefix := strings.ToUpper(name)
		cfg.Providers[name] = ProviderConfig{
			SecretKey:     k.String(prefix + "_SECRET_KEY"),
			WebhookSecret: k.String(prefix + "_WEBHOOK_SECRET"),
			Environment:   valueOrDefault(k.String(prefix+"_ENV"), "sandbox"),
			BaseURL:       strings.TrimSpace(k.String(prefix + "_BASE_URL")),
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if len(cfg.EnabledProviders) == 0 {
		return nil, errors.New("PROVIDERS must enable at least one provider")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
