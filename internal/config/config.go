// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is every setting the server reads at startup.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	// DatabaseURL selects Postgres. When empty the SQLite file at DBPath is used.
	DatabaseURL string `env:"DATABASE_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"data/accounts.db"`

	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`
	PublicURL     string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"false"`

	FacebookKey    string `env:"FACEBOOK_KEY"`
	FacebookSecret string `env:"FACEBOOK_SECRET"`
	SpotifyKey     string `env:"SPOTIFY_KEY"`
	SpotifySecret  string `env:"SPOTIFY_SECRET"`

	// Rate limiting is enabled only when RedisAddr is set.
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads a .env file if one exists, then parses the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT out of range: %d", c.Port))
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		errs = append(errs, errors.New("config: one of DATABASE_URL or DB_PATH is required"))
	}
	if c.RedisAddr != "" {
		if c.RateLimitMax <= 0 {
			errs = append(errs, fmt.Errorf("config: RATE_LIMIT_MAX must be positive: %d", c.RateLimitMax))
		}
		if c.RateLimitWindow < time.Second {
			errs = append(errs, fmt.Errorf("config: RATE_LIMIT_WINDOW must be at least 1s: %s", c.RateLimitWindow))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether the Postgres store is selected.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return level, nil
}
