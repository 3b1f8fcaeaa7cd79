package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// CanonicalScheme is the scheme the site is served under. Session
	// cookies are marked Secure when it is "https".
	CanonicalScheme string        `env:"CANONICAL_SCHEME" envDefault:"https"`
	SessionTimeout  time.Duration `env:"SESSION_TIMEOUT" envDefault:"6h"`
	SessionRefresh  time.Duration `env:"SESSION_REFRESH" envDefault:"1h"`

	ParticipantBackend string `env:"PARTICIPANT_BACKEND" envDefault:"postgres"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	OIDCProviderName string `env:"OIDC_PROVIDER_NAME" envDefault:"google"`
	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.CanonicalScheme {
	case "http", "https":
	default:
		return fmt.Errorf("config: CANONICAL_SCHEME must be http or https, got %q", c.CanonicalScheme)
	}

	if c.SessionTimeout <= 0 {
		return fmt.Errorf("config: SESSION_TIMEOUT must be positive")
	}
	// Sessions are refreshed only after aging a full refresh window, so a
	// timeout under twice the window lets active sessions lapse unrefreshed.
	if c.SessionRefresh <= 0 || c.SessionTimeout < 2*c.SessionRefresh {
		return fmt.Errorf("config: SESSION_REFRESH must be positive and at most half of SESSION_TIMEOUT")
	}

	switch c.ParticipantBackend {
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("config: DATABASE_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown PARTICIPANT_BACKEND %q", c.ParticipantBackend)
	}

	return nil
}

// OIDCEnabled reports whether an OIDC sign-in provider is configured.
func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}
