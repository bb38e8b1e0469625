package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConnIdleTime = 10 * time.Minute
	defaultMaxConnLifetime = 30 * time.Minute
)

// PoolConfig describes the bounds and timeouts of a PostgreSQL pool.
type PoolConfig struct {
	DSN              string
	MinConns         int32
	MaxConns         int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	MaxConnIdleTime  time.Duration
	MaxConnLifetime  time.Duration
	SearchPath       string
}

// ParseConfig converts cfg into a pgxpool configuration. Zero values keep the
// pgx defaults, except idle time and lifetime which fall back to package defaults.
func ParseConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, errors.New("platform/db: empty dsn")
	}
	if cfg.MaxConns < 0 || cfg.MinConns < 0 {
		return nil, errors.New("platform/db: negative pool bound")
	}
	if cfg.MaxConns > 0 && cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("platform/db: min conns %d exceeds max conns %d", cfg.MinConns, cfg.MaxConns)
	}

	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	config.MinConns = cfg.MinConns

	config.MaxConnIdleTime = defaultMaxConnIdleTime
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	config.MaxConnLifetime = defaultMaxConnLifetime
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}

	if cfg.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.StatementTimeout > 0 {
		config.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	if cfg.SearchPath != "" {
		config.ConnConfig.RuntimeParams["search_path"] = cfg.SearchPath
	}

	return config, nil
}

// New creates a new PostgreSQL connection pool and verifies it with a ping.
// The pool is closed again when the ping fails.
func New(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}
