package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/pithecene-io/evq/types"
)

// SQLite is a Registry backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database, pings it and ensures the schema exists.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLite, error) {
	db, err := sql.Open(DriverSQLite, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrConnect, err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %w", ErrConnect, err)
	}
	if _, err := db.ExecContext(pingCtx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ensure schema: %w", ErrConnect, err)
	}
	return &SQLite{db: db}, nil
}

// Lookup implements Registry.
func (r *SQLite) Lookup(ctx context.Context, key types.AgentKey) (*Agent, error) {
	var (
		platform string
		lastSync sql.NullInt64
		status   int64
	)
	err := r.db.QueryRowContext(ctx, sqliteLookupQuery, key.Ident, key.Instance).Scan(&platform, &lastSync, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup agent %s: %w", key, err)
	}
	var ts *int64
	if lastSync.Valid {
		ts = &lastSync.Int64
	}
	return agentFromRow(key, platform, ts, status), nil
}

// Put inserts or replaces an agent. Used to seed local registries.
func (r *SQLite) Put(ctx context.Context, a Agent) error {
	var lastSync sql.NullInt64
	if a.LastSync != nil {
		lastSync = sql.NullInt64{Int64: a.LastSync.Unix(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agents (ident, instance, platform, last_sync, sync_status, deleted)
		VALUES (?, ?, ?, ?, ?, FALSE)
		ON CONFLICT (ident, instance) DO UPDATE SET
			platform = excluded.platform,
			last_sync = excluded.last_sync,
			sync_status = excluded.sync_status,
			deleted = FALSE
	`, a.Key.Ident, a.Key.Instance, a.Platform, lastSync, int64(a.Status))
	if err != nil {
		return fmt.Errorf("put agent %s: %w", a.Key, err)
	}
	return nil
}

// MarkDeleted flags an agent as deleted so lookups no longer find it.
func (r *SQLite) MarkDeleted(ctx context.Context, key types.AgentKey) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agents SET deleted = TRUE WHERE ident = ? AND instance = ?`,
		key.Ident, key.Instance)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", key, err)
	}
	return nil
}

// Close implements Registry.
func (r *SQLite) Close() error {
	return r.db.Close()
}

// Verify SQLite implements Registry.
var _ Registry = (*SQLite)(nil)
