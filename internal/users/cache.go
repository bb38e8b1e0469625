package users

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "accounts:user:"

	// generationTTL outlives any in-flight load so a bump is never lost
	// while a loader still holds the previous value.
	generationTTL = 24 * time.Hour

	sharedLoadTimeout = 30 * time.Second
)

// RecordCache is a Redis read-through cache for active user records.
// Redis failures degrade to direct loads and are only logged.
//
// Each id carries a generation counter that Invalidate bumps. A load only
// writes its result when the generation it read before querying is still
// current, so a mutation that commits during a load always wins.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewRecordCache instantiates the cache helper.
func NewRecordCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RecordCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCache{client: client, ttl: ttl, logger: logger}
}

type loadResult struct {
	user  User
	found bool
}

// Fetch returns the cached record for id or populates it using loader.
// Absent records are never cached.
func (c *RecordCache) Fetch(ctx context.Context, id int64, loader func(context.Context) (User, bool, error)) (User, bool, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := cacheKey(id)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var user User
		if err := json.Unmarshal(payload, &user); err == nil {
			return user, true, nil
		}
		c.logger.Warn("users cache decode", slog.Int64("user_id", id))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("users cache get", slog.Int64("user_id", id), slog.Any("error", err))
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		// Callers share this load; one of them going away must not fail the rest.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		generation, genErr := c.generation(loadCtx, id)
		user, found, err := loader(loadCtx)
		if err != nil || !found {
			return loadResult{user: user, found: found}, err
		}
		if genErr == nil {
			c.store(loadCtx, id, generation, user)
		}
		return loadResult{user: user, found: true}, nil
	})
	select {
	case <-ctx.Done():
		return User{}, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return User{}, false, res.Err
		}
		loaded := res.Val.(loadResult)
		return loaded.user, loaded.found, nil
	}
}

// Invalidate drops the cached record for id and bumps its generation so
// loads started earlier cannot repopulate it.
func (c *RecordCache) Invalidate(ctx context.Context, id int64) {
	if c == nil || c.client == nil {
		return
	}
	genKey := generationKey(id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		c.logger.Warn("users cache invalidate", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

func (c *RecordCache) generation(ctx context.Context, id int64) (string, error) {
	generation, err := c.client.Get(ctx, generationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		c.logger.Warn("users cache generation", slog.Int64("user_id", id), slog.Any("error", err))
	}
	return generation, err
}

// store writes user unless the generation moved past loadedGeneration.
func (c *RecordCache) store(ctx context.Context, id int64, loadedGeneration string, user User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	genKey := generationKey(id)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != loadedGeneration {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(id), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
	default:
		c.logger.Warn("users cache set", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

var errStaleLoad = errors.New("users cache: record changed during load")

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}

func generationKey(id int64) string {
	return cacheKey(id) + ":gen"
}
