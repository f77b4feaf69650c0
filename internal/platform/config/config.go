// Package config loads service configuration from the environment.
//
// A local .env file is honored for development; real deployments set the
// variables directly. Parsing fails fast so main never starts half-wired.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     Redis
	Kafka     Kafka
	Auth      Auth
	Providers Providers
	Relay     Relay
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"GLOBALREACH_ADDR" envDefault:":8080"`
	PublicBaseURL   string        `env:"GLOBALREACH_PUBLIC_URL" envDefault:"http://localhost:8080"`
	ShutdownTimeout time.Duration `env:"GLOBALREACH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Postgres configures the primary document store. An empty URL selects the
// in-memory stores (tests, local hacking).
type Postgres struct {
	URL         string        `env:"DATABASE_URL"`
	MaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	PingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT" envDefault:"5s"`
}

// Redis configures the shared cache used for OAuth state, webhook dedupe
// and the relay target. Empty URL selects memory fallbacks.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures event publishing. Empty brokers disable events.
type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"globalreach"`
}

// Auth configures API authentication.
type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	// AdminTokenHash is a bcrypt hash of the admin bearer token used by
	// /admin and /relay/target routes.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`
}

// Provider holds one OAuth provider's client registration.
type Provider struct {
	ClientID     string
	ClientSecret string
}

// Providers groups the three supported identity providers. Microsoft also
// needs its directory tenant ("common" works for multi-tenant apps).
type Providers struct {
	StateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	MicrosoftClientID     string `env:"MS_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MS_CLIENT_SECRET"`
	MicrosoftTenant       string `env:"MS_TENANT" envDefault:"common"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	MetaClientID     string `env:"META_APP_ID"`
	MetaClientSecret string `env:"META_APP_SECRET"`
}

// Relay configures the OAuth callback relay.
type Relay struct {
	ForwardTimeout   time.Duration `env:"RELAY_FORWARD_TIMEOUT" envDefault:"15s"`
	FailureThreshold int           `env:"RELAY_FAILURE_THRESHOLD" envDefault:"5"`
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
