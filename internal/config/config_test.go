package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.True(t, cfg.Providers.EmailPassword)
	assert.True(t, cfg.Providers.MagicLink)
	assert.False(t, cfg.Providers.Google)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "5")
	t.Setenv("AUTH_EMAIL_PASSWORD_ENABLED", "false")
	t.Setenv("AUTH_GOOGLE_ENABLED", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "client-123")

	cfg := LoadFromEnv()

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.False(t, cfg.Providers.EmailPassword)
	assert.True(t, cfg.IsProviderEnabled(ProviderGoogle))
}

func TestGoogleRequiresClientID(t *testing.T) {
	t.Setenv("AUTH_GOOGLE_ENABLED", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "")

	cfg := LoadFromEnv()

	assert.False(t, cfg.IsProviderEnabled(ProviderGoogle))
	assert.NotContains(t, cfg.EnabledProviders(), ProviderGoogle)
}

func TestEnabledProviders(t *testing.T) {
	t.Setenv("AUTH_MAGIC_LINK_ENABLED", "false")

	cfg := LoadFromEnv()

	assert.Equal(t, []string{ProviderEmailPassword}, cfg.EnabledProviders())
}
