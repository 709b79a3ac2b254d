package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pithecene-io/evq/types"
)

// Postgres is a Registry backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates the pool and pings the database.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database URL: %w", ErrConnect, err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: create connection pool: %w", ErrConnect, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ErrConnect, err)
	}

	return &Postgres{pool: pool}, nil
}

// Lookup implements Registry.
func (r *Postgres) Lookup(ctx context.Context, key types.AgentKey) (*Agent, error) {
	var (
		platform string
		lastSync *int64
		status   int64
	)
	err := r.pool.QueryRow(ctx, lookupQuery, key.Ident, key.Instance).Scan(&platform, &lastSync, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup agent %s: %w", key, err)
	}
	return agentFromRow(key, platform, lastSync, status), nil
}

// EnsureSchema creates the agents table if it is missing.
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close implements Registry.
func (r *Postgres) Close() error {
	r.pool.Close()
	return nil
}

// Verify Postgres implements Registry.
var _ Registry = (*Postgres)(nil)
