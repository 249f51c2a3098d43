// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreFile      = "file"
	StorePostgres  = "postgres"
	StoreDatastore = "datastore"
)

// Link policies for OAuth accounts whose email already has a password account
const (
	LinkPolicyLink   = "link"
	LinkPolicyReject = "reject"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Auth      AuthConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Env             string        `env:"PASSGATE_ENV"              envDefault:"dev"`
	Port            string        `env:"PASSGATE_PORT"             envDefault:"5000"`
	ReadTimeout     time.Duration `env:"PASSGATE_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"PASSGATE_WRITE_TIMEOUT"    envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"PASSGATE_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedOrigins  []string      `env:"PASSGATE_TRUSTED_ORIGINS"  envDefault:"*" envSeparator:","`

	// Optional gRPC listener for services that verify passgate tokens. Empty disables it.
	GRPCPort string `env:"PASSGATE_GRPC_PORT"`
}

func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "dev" || s.Env == "development"
}

type StoreConfig struct {
	Kind               string `env:"PASSGATE_STORE"               envDefault:"file"`
	UsersFile          string `env:"PASSGATE_USERS_FILE"          envDefault:"users.json"`
	DatabaseDSN        string `env:"PASSGATE_DATABASE_DSN"`
	DatastoreProject   string `env:"PASSGATE_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"PASSGATE_DATASTORE_NAMESPACE"`
}

type AuthConfig struct {
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTIssuer    string        `env:"PASSGATE_JWT_ISSUER"`
	SessionTTL   time.Duration `env:"PASSGATE_SESSION_TTL"    envDefault:"1h"`
	ResetBaseURL string        `env:"PASSGATE_RESET_BASE_URL" envDefault:"http://localhost:3000"`
}

type OAuthConfig struct {
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `env:"GOOGLE_REDIRECT_URI"`
	SuccessURL         string        `env:"PASSGATE_OAUTH_SUCCESS_URL"  envDefault:"/dashboard"`
	ErrorURL           string        `env:"PASSGATE_OAUTH_ERROR_URL"    envDefault:"/login"`
	LinkPolicy         string        `env:"PASSGATE_OAUTH_LINK_POLICY"  envDefault:"link"`
	VerifyState        bool          `env:"PASSGATE_OAUTH_VERIFY_STATE" envDefault:"false"`
	Timeout            time.Duration `env:"PASSGATE_OAUTH_TIMEOUT"      envDefault:"10s"`
}

// Enabled reports whether Google sign-in has a client registration
func (o OAuthConfig) Enabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

type RateLimitConfig struct {
	RPS               float64       `env:"PASSGATE_RATE_LIMIT_RPS"    envDefault:"0"`
	Burst             int           `env:"PASSGATE_RATE_LIMIT_BURST"  envDefault:"10"`
	IdleExpiry        time.Duration `env:"PASSGATE_RATE_LIMIT_IDLE"   envDefault:"3m"`
	TrustProxyHeaders bool          `env:"PASSGATE_TRUST_PROXY_HEADERS" envDefault:"false"`
}

// Load reads a .env file if present, then the process environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil, and validates it.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.OAuth.GoogleRedirectURI == "" {
		cfg.OAuth.GoogleRedirectURI = fmt.Sprintf("http://localhost:%s/auth/google/callback", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	switch c.Store.Kind {
	case StoreFile:
		if c.Store.UsersFile == "" {
			return fmt.Errorf("PASSGATE_USERS_FILE is required for the file store")
		}
	case StorePostgres:
		if c.Store.DatabaseDSN == "" {
			return fmt.Errorf("PASSGATE_DATABASE_DSN is required for the postgres store")
		}
	case StoreDatastore:
		if c.Store.DatastoreProject == "" {
			return fmt.Errorf("PASSGATE_DATASTORE_PROJECT is required for the datastore store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store.Kind)
	}
	switch c.OAuth.LinkPolicy {
	case LinkPolicyLink, LinkPolicyReject:
	default:
		return fmt.Errorf("unknown oauth link policy %q", c.OAuth.LinkPolicy)
	}
	return nil
}
