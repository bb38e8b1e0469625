package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/accounts/internal/credential"
	"github.com/odyssey-erp/accounts/internal/users"
)

// StoreDeps are the optional collaborators of a user store.
type StoreDeps struct {
	Redis         *redis.Client
	Observer      users.Observer
	LoginRecorder users.LoginRecorder
}

// OpenStore builds the user store from configuration, connects it with the
// configured retry policy and initialises the schema. Either failure is fatal
// for the caller; the store is closed before returning an error.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger, deps StoreDeps) (*users.Store, error) {
	hasher, err := credential.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("build hasher: %w", err)
	}
	var cache *users.RecordCache
	if deps.Redis != nil {
		cache = users.NewRecordCache(deps.Redis, cfg.UserCacheTTL, logger)
	}
	store, err := users.New(users.Options{
		Dial:            users.PostgresDialer(cfg.PoolConfig()),
		Hasher:          hasher,
		Logger:          logger,
		ConnectAttempts: cfg.PGConnectAttempts,
		RetryDelay:      cfg.PGConnectRetryDelay,
		Cache:           cache,
		Observer:        deps.Observer,
		LoginRecorder:   deps.LoginRecorder,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, err
	}
	if err := store.InitializeSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
