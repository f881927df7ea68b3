package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":                 "postgres://localhost/payrouter",
		"REDIS_URL":                    "redis://localhost:6379/0",
		"PROVIDERS":                    "",
		"FALLBACK_PROVIDERS":           "",
		"PORT":                         "",
		"APP_ENV":                      "",
		"PAYMENT_ATTEMPT_BUDGET":       "",
		"WEBHOOK_REPLAY_TTL":           "",
		"RELIABILITY_WINDOW":           "",
		"RELIABILITY_REFRESH_INTERVAL": "",
		"STRIPE_SECRET_KEY":            "",
		"STRIPE_WEBHOOK_SECRET":        "",
		"STRIPE_ENV":                   "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, []string{"stripe", "razorpay", "paypal"}, cfg.EnabledProviders)
	require.Empty(t, cfg.FallbackProviders)
	require.Equal(t, 30*time.Second, cfg.AttemptBudget)
	require.Equal(t, 24*time.Hour, cfg.WebhookReplayTTL)
	require.Equal(t, time.Hour, cfg.ReliabilityWindow)
	require.Equal(t, time.Minute, cfg.ReliabilityRefresh)

	// Every enabled provider gets a config entry even when no secrets are set.
	require.Len(t, cfg.Providers, 3)
	require.Equal(t, "sandbox", cfg.Providers["stripe"].Environment)
}

func TestLoadProviderCredentials(t *testing.T) {
	env := baseEnv()
	env["PROVIDERS"] = "stripe, razorpay"
	env["FALLBACK_PROVIDERS"] = "razorpay"
	env["STRIPE_SECRET_KEY"] = "sk_live_123"
	env["STRIPE_WEBHOOK_SECRET"] = "whsec_123"
	env["STRIPE_ENV"] = "live"
	env["RAZORPAY_SECRET_KEY"] = "rzp_123"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, []string{"stripe", "razorpay"}, cfg.EnabledProviders)
	require.Equal(t, []string{"razorpay"}, cfg.FallbackProviders)
	require.Equal(t, "sk_live_123", cfg.Providers["stripe"].SecretKey)
	require.Equal(t, "whsec_123", cfg.Providers["stripe"].WebhookSecret)
	require.Equal(t, "live", cfg.Providers["stripe"].Environment)
	require.Equal(t, "rzp_123", cfg.Providers["razorpay"].SecretKey)
	_, hasPayPal := cfg.Providers["paypal"]
	require.False(t, hasPayPal)
}

func TestLoadRequiresDatabaseAndRedis(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["REDIS_URL"] = ""
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}

func TestLoadDurationFallbackOnGarbage(t *testing.T) {
	env := baseEnv()
	env["PAYMENT_ATTEMPT_BUDGET"] = "soon"
	env["RELIABILITY_WINDOW"] = "2h"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.AttemptBudget)
	require.Equal(t, 2*time.Hour, cfg.ReliabilityWindow)
}

func TestHTTPAddrNormalization(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())

	env["PORT"] = ":7070"
	cfg, err = config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTPAddr())
}
