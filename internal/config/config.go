package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultTokenURL       = "https://accounts.zoho.in/oauth/v2/token"
	defaultCliqBotURL     = "https://cliq.zoho.in/company/60006690132/api/v2/bots/watchtower/message"
	defaultCliqChannelURL = "https://cliq.zoho.in/api/v2/channelsbyname/csintegrationplayground/message"
	defaultBanListURL     = "https://nsearchives.nseindia.com/content/fo/fo_secban.csv"
	defaultNSEBaseURL     = "https://www.nseindia.com"
	defaultHolidayURL     = "https://fyers.in/holiday-data.json"
)

// ConfigError reports required environment variables that are missing.
// It is returned before any network call is attempted and is never
// retryable.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", "))
}

// Config is built once at process start and passed explicitly into the
// components that need it. Secrets are never logged.
type Config struct {
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRedirectURI  string
	ZohoRefreshToken string

	TokenURL       string
	CliqBotURL     string
	CliqChannelURL string
	BotUniqueName  string

	BanListURL string
	NSEBaseURL string
	HolidayURL string

	HTTPTimeoutSecs int
	NSEMaxRetries   int

	DatabaseURL string
	RedisURL    string
}

func Load() (*Config, error) {
	cfg := &Config{
		ZohoClientID:     strings.TrimSpace(os.Getenv("ZOHO_CLIENT_ID")),
		ZohoClientSecret: strings.TrimSpace(os.Getenv("ZOHO_CLIENT_SECRET")),
		ZohoRedirectURI:  strings.TrimSpace(os.Getenv("ZOHO_REDIRECT_URI")),
		ZohoRefreshToken: strings.TrimSpace(os.Getenv("ZOHO_REFRESH_TOKEN")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	var missing []string
	if cfg.ZohoClientID == "" {
		missing = append(missing, "ZOHO_CLIENT_ID")
	}
	if cfg.ZohoClientSecret == "" {
		missing = append(missing, "ZOHO_CLIENT_SECRET")
	}
	if cfg.ZohoRedirectURI == "" {
		missing = append(missing, "ZOHO_REDIRECT_URI")
	}
	if cfg.ZohoRefreshToken == "" {
		missing = append(missing, "ZOHO_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Missing: missing}
	}

	cfg.TokenURL = envOrDefault("ZOHO_TOKEN_URL", defaultTokenURL)
	cfg.CliqBotURL = envOrDefault("CLIQ_BOT_URL", defaultCliqBotURL)
	cfg.CliqChannelURL = envOrDefault("CLIQ_CHANNEL_URL", defaultCliqChannelURL)
	cfg.BotUniqueName = envOrDefault("CLIQ_BOT_UNIQUE_NAME", "watchtower")

	cfg.BanListURL = envOrDefault("NSE_BANLIST_URL", defaultBanListURL)
	cfg.NSEBaseURL = envOrDefault("NSE_BASE_URL", defaultNSEBaseURL)
	cfg.HolidayURL = envOrDefault("HOLIDAY_URL", defaultHolidayURL)

	cfg.HTTPTimeoutSecs = 15
	if v := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeoutSecs = n
		}
	}

	cfg.NSEMaxRetries = 3
	if v := strings.TrimSpace(os.Getenv("NSE_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NSEMaxRetries = n
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
