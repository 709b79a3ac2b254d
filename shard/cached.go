package shard

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pithecene-io/evq/types"
)

// DefaultCacheTTL is how long a positive assignment is reused.
const DefaultCacheTTL = 30 * time.Second

// CachedResolver memoizes successful resolutions of an inner resolver.
// Failures, including ErrNoShard, are never cached.
type CachedResolver struct {
	inner Resolver
	cache *ttlcache.Cache[types.AgentKey, types.ShardID]
}

// NewCachedResolver wraps inner with a TTL cache and starts its expiry loop.
// Call Close to stop it.
func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New[types.AgentKey, types.ShardID](
		ttlcache.WithTTL[types.AgentKey, types.ShardID](ttl),
		ttlcache.WithDisableTouchOnHit[types.AgentKey, types.ShardID](),
	)
	go cache.Start()
	return &CachedResolver{inner: inner, cache: cache}
}

// Resolve implements Resolver.
func (r *CachedResolver) Resolve(ctx context.Context, key types.AgentKey) (types.ShardID, error) {
	if item := r.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	id, err := r.inner.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	r.cache.Set(key, id, ttlcache.DefaultTTL)
	return id, nil
}

// Len reports the number of cached assignments.
func (r *CachedResolver) Len() int {
	return r.cache.Len()
}

// Close stops the expiry loop and closes the inner resolver if it can be closed.
func (r *CachedResolver) Close() error {
	r.cache.Stop()
	if c, ok := r.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Verify CachedResolver implements Resolver.
var _ Resolver = (*CachedResolver)(nil)
