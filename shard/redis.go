package shard

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/evq/types"
)

// DefaultRedisKey is the hash holding "<ident>:<instance>" -> shard id.
const DefaultRedisKey = "evq:shard_assignments"

// DefaultRedisTimeout is the default per-lookup timeout.
const DefaultRedisTimeout = 2 * time.Second

// RedisConfig configures RedisResolver.
type RedisConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Key is the assignment hash (default: evq:shard_assignments).
	Key string
	// Timeout is the per-lookup timeout (default 2s).
	Timeout time.Duration
}

// RedisResolver reads assignments with HGET on a Redis hash.
type RedisResolver struct {
	config RedisConfig
	client *goredis.Client
}

// NewRedisResolver creates a resolver from cfg. The connection is lazy.
func NewRedisResolver(cfg RedisConfig) (*RedisResolver, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis resolver requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis resolver: invalid URL: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisTimeout
	}
	return &RedisResolver{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Resolve implements Resolver. A missing field or an empty value is ErrNoShard.
func (r *RedisResolver) Resolve(ctx context.Context, key types.AgentKey) (types.ShardID, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	val, err := r.client.HGet(lookupCtx, r.config.Key, key.Filename()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNoShard, key)
	}
	if err != nil {
		return "", fmt.Errorf("redis resolver: hget %s: %w", key, err)
	}
	if val == "" {
		return "", fmt.Errorf("%w: %s (empty assignment)", ErrNoShard, key)
	}
	return types.ShardID(val), nil
}

// Close releases the Redis client.
func (r *RedisResolver) Close() error {
	return r.client.Close()
}

// Verify RedisResolver implements Resolver.
var _ Resolver = (*RedisResolver)(nil)
