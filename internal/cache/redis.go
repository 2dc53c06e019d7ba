// Package cache implements the book cache port on Redis. Entries are derived,
// TTL-bounded copies; the durable store stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bookstore/internal/book"
)

const defaultTTL = 30 * time.Minute

// Redis fronts read paths with per-scope TTLs and coarse scope eviction.
type Redis struct {
	client *redis.Client
	prefix string
	ttls   map[string]time.Duration
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttls: map[string]time.Duration{
			book.ScopeBooks:    2 * time.Hour,
			book.ScopeBook:     60 * time.Minute,
			book.ScopeCategory: 15 * time.Minute,
		},
	}
}

func (c *Redis) key(scope, key string) string {
	return c.prefix + scope + ":" + key
}

func (c *Redis) ttlFor(scope string) time.Duration {
	if ttl, ok := c.ttls[scope]; ok {
		return ttl
	}
	return defaultTTL
}

func (c *Redis) Get(ctx context.Context, scope, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(scope, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return true, nil
}

// Set stores a value under its scope TTL. Nil values are never cached so a
// not-found response cannot poison later reads.
func (c *Redis) Set(ctx context.Context, scope, key string, value any) error {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(scope, key), data, c.ttlFor(scope)).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// EvictScope drops every entry in the given scopes via SCAN + DEL.
func (c *Redis) EvictScope(ctx context.Context, scopes ...string) error {
	for _, scope := range scopes {
		pattern := c.key(scope, "*")
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("cache scan: %w", err)
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("cache evict: %w", err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}
