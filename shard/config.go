package shard

import (
	"fmt"
	"time"

	"github.com/pithecene-io/evq/types"
)

// Resolver kinds.
const (
	KindStatic = "static"
	KindRedis  = "redis"
)

// Config selects and configures a resolver.
type Config struct {
	Kind string
	// Static maps "<ident>:<instance>" to a shard id (kind static).
	Static map[string]types.ShardID
	// Redis configures kind redis.
	Redis RedisConfig
	// CacheTTL enables the TTL cache when positive.
	CacheTTL time.Duration
}

// New builds the resolver described by cfg.
func New(cfg Config) (Resolver, error) {
	var (
		r   Resolver
		err error
	)
	switch cfg.Kind {
	case KindStatic:
		r, err = NewStaticResolver(cfg.Static)
	case KindRedis:
		r, err = NewRedisResolver(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported resolver type: %q (must be static or redis)", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 {
		return NewCachedResolver(r, cfg.CacheTTL), nil
	}
	return r, nil
}

// Close closes r if it holds resources.
func Close(r Resolver) error {
	if c, ok := r.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
