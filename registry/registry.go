// Package registry looks up monitored agents in the primary database.
//
// Two drivers are supported: postgres (pgx connection pool) for production
// and sqlite (modernc.org/sqlite, pure Go) for local use and tests. Both
// read the same agents table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/evq/types"
)

// Sentinel errors. Use errors.Is for assertions.
var (
	// ErrAgentNotFound means no live agent matches the key.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrConnect wraps any failure to open or ping the database.
	ErrConnect = errors.New("registry connect failed")
)

// Drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 5 * time.Second

// Schema is the agents table both drivers read. last_sync is a unix
// timestamp in seconds, NULL when the agent never synced.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	ident       TEXT    NOT NULL,
	instance    TEXT    NOT NULL,
	platform    TEXT    NOT NULL DEFAULT '',
	last_sync   BIGINT,
	sync_status INTEGER NOT NULL DEFAULT 0,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (ident, instance)
)`

const (
	lookupQuery = `
	SELECT platform, last_sync, sync_status
	FROM agents
	WHERE ident = $1 AND instance = $2 AND deleted = FALSE
`
	sqliteLookupQuery = `
	SELECT platform, last_sync, sync_status
	FROM agents
	WHERE ident = ? AND instance = ? AND deleted = FALSE
`
)

// Agent is the registry view of one monitored installation.
type Agent struct {
	Key      types.AgentKey
	Platform string
	// LastSync is nil when the agent never synced.
	LastSync *time.Time
	Status   types.SyncStatus
}

// Registry resolves agents by key.
type Registry interface {
	// Lookup returns the live agent for key, or ErrAgentNotFound.
	Lookup(ctx context.Context, key types.AgentKey) (*Agent, error)

	// Close releases database resources.
	Close() error
}

// Config selects and configures a registry driver.
type Config struct {
	Driver         string
	DSN            string
	MaxConns       int
	ConnectTimeout time.Duration
}

// Validate checks the driver and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported registry driver: %q (must be postgres or sqlite)", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("registry dsn is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns must be >= 0, got %d", c.MaxConns)
	}
	return nil
}

// Open connects to the configured registry and verifies the connection.
// Every failure matches ErrConnect.
func Open(ctx context.Context, cfg Config) (Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	switch cfg.Driver {
	case DriverPostgres:
		return OpenPostgres(ctx, cfg)
	default:
		return OpenSQLite(ctx, cfg)
	}
}

// agentFromRow builds an Agent from scanned columns.
func agentFromRow(key types.AgentKey, platform string, lastSync *int64, status int64) *Agent {
	a := &Agent{
		Key:      key,
		Platform: platform,
		Status:   types.SyncStatus(status),
	}
	if lastSync != nil {
		ts := time.Unix(*lastSync, 0).UTC()
		a.LastSync = &ts
	}
	return a
}
