package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Token store backends
const (
	TokenStoreSQLite  = "sqlite"
	TokenStoreKeyring = "keyring"
)

// Config application configuration
type Config struct {
	// Remote service
	APIURL            string        `env:"API_URL" envDefault:"http://localhost:8000/api/v1"`
	WSURL             string        `env:"WS_URL"` // derived from API_URL when empty
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0"` // 0 disables pacing

	// Session persistence
	TokenStore   string        `env:"TOKEN_STORE" envDefault:"sqlite"`
	DatabasePath string        `env:"DATABASE_PATH" envDefault:"./data/mailsync.db"`
	KeyringDir   string        `env:"KEYRING_DIR" envDefault:"~/.config/mailsync/keyring"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	// Realtime channel
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`

	// Telegram notifier (optional)
	TelegramToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramTopicID int    `env:"TELEGRAM_TOPIC_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if the Telegram notifier is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return Parse(env.Options{})
}

// Parse parses configuration with the given options and validates it.
// Tests pass Environment to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}

	switch c.TokenStore {
	case TokenStoreSQLite, TokenStoreKeyring:
	default:
		return fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreSQLite, TokenStoreKeyring, c.TokenStore)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must not be negative")
	}

	return nil
}
