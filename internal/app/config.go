package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/accounts/internal/platform/db"
)

// Last-login stamping modes.
const (
	StampInline = "inline"
	StampQueue  = "queue"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PGDSN string `envconfig:"PG_DSN"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBName     string `envconfig:"DB_NAME" default:"accounts"`
	DBUser     string `envconfig:"DB_USER" default:"accounts"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	PGSchema            string        `envconfig:"PG_SCHEMA"`
	PGMinConns          int32         `envconfig:"PG_MIN_CONNS" default:"1"`
	PGMaxConns          int32         `envconfig:"PG_MAX_CONNS" default:"10"`
	PGStatementTimeout  time.Duration `envconfig:"PG_STATEMENT_TIMEOUT" default:"5s"`
	PGConnectTimeout    time.Duration `envconfig:"PG_CONNECT_TIMEOUT" default:"5s"`
	PGConnectAttempts   int           `envconfig:"PG_CONNECT_ATTEMPTS" default:"5"`
	PGConnectRetryDelay time.Duration `envconfig:"PG_CONNECT_RETRY_DELAY" default:"2s"`

	BcryptCost int `envconfig:"BCRYPT_COST" default:"12"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	UserCacheTTL   time.Duration `envconfig:"USER_CACHE_TTL" default:"5m"`
	LoginStampMode string        `envconfig:"LOGIN_STAMP_MODE" default:"inline"`
}

// LoadConfig reads configuration from environment variables. In development a
// .env file in the working directory is loaded first when present, unless the
// process runs in test mode.
func LoadConfig() (*Config, error) {
	if env := os.Getenv("APP_ENV"); !InTestMode() && (env == "" || env == "development") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.PGMaxConns < 1 {
		return errors.New("PG_MAX_CONNS must be at least 1")
	}
	if c.PGMinConns < 0 || c.PGMinConns > c.PGMaxConns {
		return fmt.Errorf("PG_MIN_CONNS must be between 0 and %d", c.PGMaxConns)
	}
	if c.PGConnectAttempts < 1 {
		return errors.New("PG_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch c.LoginStampMode {
	case StampInline:
	case StampQueue:
		if c.RedisAddr == "" {
			return errors.New("LOGIN_STAMP_MODE=queue requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown LOGIN_STAMP_MODE %q", c.LoginStampMode)
	}
	return nil
}

// DSN returns PG_DSN or, when unset, a URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	if c.DBSSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.DBSSLMode)
	}
	return u.String()
}

// PoolConfig maps the PG_* settings onto platform/db.
func (c *Config) PoolConfig() db.PoolConfig {
	return db.PoolConfig{
		DSN:              c.DSN(),
		MinConns:         c.PGMinConns,
		MaxConns:         c.PGMaxConns,
		ConnectTimeout:   c.PGConnectTimeout,
		StatementTimeout: c.PGStatementTimeout,
		SearchPath:       c.PGSchema,
	}
}

// QueueEnabled reports whether last-login stamps go through the job queue.
func (c *Config) QueueEnabled() bool {
	return c != nil && strings.EqualFold(c.LoginStampMode, StampQueue)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
