package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCommands is the command surface RedisCache uses, satisfied by
// *redis.Client. Narrowed so tests can stub the backend.
type redisCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache is a Cache backed by Redis, for deployments where several
// server instances must share one replay view. Atomicity of TryConsume
// comes from SET NX; expiry is delegated to Redis key TTLs.
type RedisCache struct {
	rdb       redisCommands
	keyPrefix string
}

// DefaultKeyPrefix namespaces replay entries in a shared Redis.
const DefaultKeyPrefix = "x402:replay:"

// NewRedisCache creates a replay cache on an existing Redis client. An empty
// keyPrefix falls back to DefaultKeyPrefix.
func NewRedisCache(rdb *redis.Client, keyPrefix string) *RedisCache {
	return newRedisCache(rdb, keyPrefix)
}

func newRedisCache(rdb redisCommands, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisCache{rdb: rdb, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(signature string) string {
	return c.keyPrefix + signature
}

// TryConsume implements Cache.
func (c *RedisCache) TryConsume(ctx context.Context, signature string, meta Metadata, ttl time.Duration) (Result, error) {
	if ttl < MinTTL {
		ttl = MinTTL
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return Result{}, fmt.Errorf("marshal replay metadata: %w", err)
	}

	created, err := c.rdb.SetNX(ctx, c.key(signature), payload, ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("replay setnx: %w", err)
	}
	if created {
		return Result{FirstTime: true}, nil
	}

	existing, err := c.Peek(ctx, signature)
	if err != nil {
		return Result{}, err
	}
	// The entry can expire between SETNX and GET. Treat that as a replay
	// with no metadata rather than retrying; the signature was consumed.
	return Result{Existing: existing}, nil
}

// Peek implements Cache.
func (c *RedisCache) Peek(ctx context.Context, signature string) (*Metadata, error) {
	raw, err := c.rdb.Get(ctx, c.key(signature)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay get: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal replay metadata: %w", err)
	}
	return &meta, nil
}

// MarkStatus implements StatusMarker. The rewrite keeps the key's remaining
// TTL.
func (c *RedisCache) MarkStatus(ctx context.Context, signature, status string) error {
	meta, err := c.Peek(ctx, signature)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	meta.Status = status

	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal replay metadata: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(signature), payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("replay set: %w", err)
	}
	return nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
