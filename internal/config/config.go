package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application settings loaded from the environment.
// Values mirror the knobs the template exposes through its .env file.
type Config struct {
	ServiceName string
	Environment string
	ListenAddr  string
	FrontendURL string

	// JWT / session
	SecretKey       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Providers Providers
	SMTP      SMTP
}

// Providers controls which authentication providers are offered.
type Providers struct {
	EmailPassword     bool
	AllowRegistration bool

	Google         bool
	GoogleClientID string

	Apple         bool
	AppleClientID string

	MagicLink              bool
	MagicLinkAllowNewUsers bool
	MagicLinkTTL           time.Duration
}

// SMTP holds outbound mail settings. An empty Host means mail delivery is
// not configured and magic links are logged instead of sent.
type SMTP struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// LoadFromEnv builds a Config from environment variables with the
// template's defaults.
func LoadFromEnv() *Config {
	return &Config{
		ServiceName: envString("SERVICE_NAME", "service-core"),
		Environment: envString("ENVIRONMENT", "development"),
		ListenAddr:  envString("LISTEN_ADDR", "0.0.0.0:8000"),
		FrontendURL: envString("FRONTEND_URL", "http://localhost:5173"),

		SecretKey:       envString("SECRET_KEY", "change-this-in-production"),
		AccessTokenTTL:  time.Duration(envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenTTL: time.Duration(envInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,

		Providers: Providers{
			EmailPassword:     envBool("AUTH_EMAIL_PASSWORD_ENABLED", true),
			AllowRegistration: envBool("AUTH_EMAIL_REGISTRATION_ENABLED", true),

			Google:         envBool("AUTH_GOOGLE_ENABLED", false),
			GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),

			Apple:         envBool("AUTH_APPLE_ENABLED", false),
			AppleClientID: os.Getenv("APPLE_CLIENT_ID"),

			MagicLink:              envBool("AUTH_MAGIC_LINK_ENABLED", true),
			MagicLinkAllowNewUsers: envBool("AUTH_MAGIC_LINK_NEW_USERS_ENABLED", true),
			MagicLinkTTL:           time.Duration(envInt("MAGIC_LINK_EXPIRE_MINUTES", 15)) * time.Minute,
		},

		SMTP: SMTP{
			Host:      os.Getenv("SMTP_HOST"),
			Port:      envInt("SMTP_PORT", 587),
			Username:  os.Getenv("SMTP_USERNAME"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: os.Getenv("SMTP_FROM_EMAIL"),
			FromName:  envString("SMTP_FROM_NAME", "Template App"),
		},
	}
}

// Provider name constants used in the auth config endpoint.
const (
	ProviderEmailPassword = "email-password"
	ProviderGoogle        = "google"
	ProviderApple         = "apple"
	ProviderMagicLink     = "magic-link"
)

// IsProviderEnabled reports whether a provider is enabled and configured.
// Google and Apple additionally require a client id to count as enabled.
func (c *Config) IsProviderEnabled(provider string) bool {
	switch provider {
	case ProviderEmailPassword:
		return c.Providers.EmailPassword
	case ProviderGoogle:
		return c.Providers.Google && c.Providers.GoogleClientID != ""
	case ProviderApple:
		return c.Providers.Apple && c.Providers.AppleClientID != ""
	case ProviderMagicLink:
		return c.Providers.MagicLink
	}
	return false
}

// EnabledProviders lists the providers that are enabled and configured.
func (c *Config) EnabledProviders() []string {
	enabled := []string{}
	for _, p := range []string{ProviderEmailPassword, ProviderGoogle, ProviderApple, ProviderMagicLink} {
		if c.IsProviderEnabled(p) {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
