package linkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/moonsong-labs/conversation-linker/internal/config"
	"github.com/moonsong-labs/conversation-linker/internal/linking"
)

// CachedStore wraps a linking.Store and caches FindParents results in Redis.
// The cache is purely a performance aid: every other Store method, and every
// linker invariant, is unaffected by whether an entry is a hit or a miss.
// Entries are keyed off the full criteria, so a cached answer can never be
// served for the wrong query.
type CachedStore struct {
	linking.Store
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCachedStore wraps inner with a Redis-backed FindParents cache when
// cfg.RedisAddr is set. Returns inner unchanged when caching is disabled.
func NewCachedStore(cfg config.CacheConfig, inner linking.Store) (linking.Store, error) {
	if cfg.RedisAddr == "" {
		return inner, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis parent cache ping: %w", err)
	}
	ttl := time.Duration(cfg.ParentCacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{Store: inner, client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis client.
func (c *CachedStore) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *CachedStore) cacheKey(criteria linking.FindParentsCriteria) (string, error) {
	data, err := json.Marshal(criteria)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "convlink:parents:" + hex.EncodeToString(sum[:]), nil
}

// FindParents serves from Redis when available, else delegates to the
// wrapped Store and populates the cache on the way out.
func (c *CachedStore) FindParents(ctx context.Context, criteria linking.FindParentsCriteria) ([]linking.StoredRequestSummary, error) {
	key, err := c.cacheKey(criteria)
	if err != nil {
		return c.Store.FindParents(ctx, criteria)
	}

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		var cached []linking.StoredRequestSummary
		if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		log.Debug().Err(err).Str("key", key).Msg("parent_cache_get_error")
	}

	results, err := c.Store.FindParents(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(results); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("parent_cache_set_error")
		}
	}
	return results, nil
}

var _ linking.Store = (*CachedStore)(nil)
