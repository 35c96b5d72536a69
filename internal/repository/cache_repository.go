package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
)

const cacheDeleteBatch = 100

// CacheRepository stores JSON payloads in Redis under a common key namespace.
// A nil client behaves as an always-empty cache.
type CacheRepository struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewCacheRepository constructs a cache repository. Keys are prefixed with namespace when it is set.
func NewCacheRepository(client *redis.Client, namespace string, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, namespace: namespace, logger: logger}
}

func (r *CacheRepository) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

// Get loads key into dest or returns ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return appErrors.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A payload we cannot decode is as good as absent.
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON with ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes every key matching pattern, in batches.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}
	batch := make([]string, 0, cacheDeleteBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis delete %d keys: %w", len(batch), err)
		}
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, r.key(pattern), cacheDeleteBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cacheDeleteBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return flush()
}

// Close releases the Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
