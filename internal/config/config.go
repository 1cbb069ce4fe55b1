// Package config loads service settings from flags, with environment and .env fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is shared by the server and the Lambda entry point.
type Config struct {
	Addr string `validate:"required"`
	DSN  string `validate:"required"`

	SessionKey string `validate:"required,min=16"` // verifies session JWTs
	StateKey   string `validate:"required,min=16"` // signs OAuth state
	TokenKey   string `validate:"required,min=32"` // seals QuickBooks tokens at rest

	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RedirectURL  string `validate:"required,url"`

	Sandbox       bool
	MinorVersion  string        `validate:"required,numeric"`
	HTTPTimeout   time.Duration `validate:"gt=0"`
	RatePerMinute int           `validate:"gte=0"`

	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string

	ConnectedRedirect string `validate:"omitempty,url"`
}

// LoadEnvFile reads path into the environment without overriding set variables.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses args into a Config. Every flag defaults to its QBSYNC_* variable.
func Load(fset *flag.FlagSet, args []string) (*Config, error) {
	if err := LoadEnvFile(envOr("QBSYNC_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	c := &Config{}
	fset.StringVar(&c.Addr, "addr", envOr("QBSYNC_ADDR", ":8080"), "listen address")
	fset.StringVar(&c.DSN, "dsn", envOr("QBSYNC_DSN", ""), "PostgreSQL DSN")
	fset.StringVar(&c.SessionKey, "session-key", envOr("QBSYNC_SESSION_KEY", ""), "HS256 key of session JWTs")
	fset.StringVar(&c.StateKey, "state-key", envOr("QBSYNC_STATE_KEY", ""), "HS256 key for OAuth state")
	fset.StringVar(&c.TokenKey, "token-key", envOr("QBSYNC_TOKEN_KEY", ""), "secret for sealing stored tokens")
	fset.StringVar(&c.ClientID, "client-id", envOr("QBSYNC_CLIENT_ID", ""), "Intuit app client id")
	fset.StringVar(&c.ClientSecret, "client-secret", envOr("QBSYNC_CLIENT_SECRET", ""), "Intuit app client secret")
	fset.StringVar(&c.RedirectURL, "redirect-url", envOr("QBSYNC_REDIRECT_URL", ""), "OAuth callback URL")
	fset.BoolVar(&c.Sandbox, "sandbox", envBool("QBSYNC_SANDBOX", false), "use the QuickBooks sandbox API")
	fset.StringVar(&c.MinorVersion, "minor-version", envOr("QBSYNC_MINOR_VERSION", "75"), "QuickBooks API minorversion")
	fset.DurationVar(&c.HTTPTimeout, "http-timeout", envDuration("QBSYNC_HTTP_TIMEOUT", 30*time.Second), "QuickBooks request timeout")
	fset.IntVar(&c.RatePerMinute, "rate", envInt("QBSYNC_RATE_PER_MINUTE", 450), "max QuickBooks requests per minute, 0 disables")
	fset.StringVar(&c.RedisAddr, "redis-addr", envOr("QBSYNC_REDIS_ADDR", ""), "Redis address for cross-process locks")
	fset.StringVar(&c.RedisPassword, "redis-password", envOr("QBSYNC_REDIS_PASSWORD", ""), "Redis password")
	fset.StringVar(&c.ConnectedRedirect, "connected-redirect", envOr("QBSYNC_CONNECTED_REDIRECT", ""), "where the OAuth callback redirects")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Field()+": "+fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
