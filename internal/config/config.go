package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrConfig marks an invalid environment or connection string.
var ErrConfig = errors.New("invalid configuration")

// Dialect names the store backend selected by the database URL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config holds application settings, read from the environment and an optional .env file.
type Config struct {
	DatabaseURL    string `env:"DATABASE_URL"`
	MaxConnections int    `env:"GALOS_MAX_CONNECTIONS" envDefault:"5"`

	// MaxExpanded caps the number of systems a single route search expands; 0 disables the cap.
	MaxExpanded int `env:"GALOS_MAX_EXPANDED" envDefault:"200000"`

	EDDNURL  string `env:"EDDN_URL" envDefault:"tcp://eddn.edcd.io:9500"`
	HTTPAddr string `env:"GALOS_HTTP_ADDR" envDefault:"127.0.0.1:13370"`
	// RateLimit is the per-IP request budget per minute for the HTTP API; 0 disables it.
	RateLimit int `env:"GALOS_RATE_LIMIT" envDefault:"120"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MaxConnections: 5,
		MaxExpanded:    200000,
		EDDNURL:        "tcp://eddn.edcd.io:9500",
		HTTPAddr:       "127.0.0.1:13370",
		RateLimit:      120,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads the dotenv files (missing files are skipped) and then the process
// environment. Values already set in the environment win over dotenv values.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, f, err)
		}
	}
	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

// Validate checks the settings needed to open the store.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: DATABASE_URL is not set", ErrConfig)
	}
	if _, err := c.Dialect(); err != nil {
		return err
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: GALOS_MAX_CONNECTIONS must be positive, got %d", ErrConfig, c.MaxConnections)
	}
	if c.MaxExpanded < 0 {
		return fmt.Errorf("%w: GALOS_MAX_EXPANDED must not be negative, got %d", ErrConfig, c.MaxExpanded)
	}
	return nil
}

// Dialect derives the store backend from the database URL scheme.
// postgres:// and postgresql:// select PostgreSQL; sqlite:, file: and bare paths select SQLite.
func (c *Config) Dialect() (Dialect, error) {
	url := strings.TrimSpace(c.DatabaseURL)
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		if url == "" {
			return "", fmt.Errorf("%w: empty database URL", ErrConfig)
		}
		return DialectSQLite, nil
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "file":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: unsupported database scheme %q", ErrConfig, scheme)
	}
}

// SQLitePath strips the sqlite:// or sqlite: prefix from the database URL,
// leaving a path or file: URI the SQLite driver understands.
func (c *Config) SQLitePath() string {
	url := strings.TrimSpace(c.DatabaseURL)
	for _, p := range []string{"sqlite://", "sqlite:"} {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p)
		}
	}
	return url
}
