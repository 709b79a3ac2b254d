package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/types"
)

// ErrUnknownShard is returned when no configured target carries a shard id.
var ErrUnknownShard = errors.New("unknown shard")

// Target is one configured shard: its id, its host and its storage backend.
type Target struct {
	ID      types.ShardID
	Host    string
	Backend Backend
}

// Label is the host without its port. Connections and report rows are keyed by it.
func (t Target) Label() string {
	return types.HostLabel(t.Host)
}

// Opener opens the store for a target. Called at most once per host label.
type Opener func(ctx context.Context, t Target) (Store, error)

// DefaultOpener opens a lode-backed store for t.Backend, wrapped with
// metrics instrumentation and the backend's rate limit.
func DefaultOpener(collection string, collector *metrics.Collector) Opener {
	return func(ctx context.Context, t Target) (Store, error) {
		factory, err := NewFactory(ctx, t.Backend)
		if err != nil {
			return nil, err
		}
		ls, err := NewLodeStore(factory, collection)
		if err != nil {
			return nil, err
		}
		return NewInstrumentedStore(ls, collector, NewLimiter(t.Backend.OpsPerSecond)), nil
	}
}

// Pool keeps one live store per shard host label, opened on first use.
// Safe for concurrent use.
type Pool struct {
	targets []Target
	open    Opener

	mu     sync.Mutex // guards stores
	stores map[string]Store
}

// NewPool validates targets and returns a pool that opens stores with open.
// Shard ids must be unique. Targets sharing a host label must share a backend.
func NewPool(targets []Target, open Opener) (*Pool, error) {
	if open == nil {
		return nil, errors.New("blobstore: nil opener")
	}
	ids := make(map[types.ShardID]struct{}, len(targets))
	backends := make(map[string]Backend, len(targets))
	for _, t := range targets {
		if t.ID.IsZero() {
			return nil, fmt.Errorf("shard on host %q has no id", t.Host)
		}
		if t.Label() == "" {
			return nil, fmt.Errorf("shard %q has no host", t.ID)
		}
		if _, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("duplicate shard id %q", t.ID)
		}
		ids[t.ID] = struct{}{}
		if prev, ok := backends[t.Label()]; ok && prev != t.Backend {
			return nil, fmt.Errorf("host %q configured with conflicting backends", t.Label())
		}
		backends[t.Label()] = t.Backend
	}

	return &Pool{
		targets: append([]Target(nil), targets...),
		open:    open,
		stores:  make(map[string]Store),
	}, nil
}

// Targets returns the configured targets in configuration order.
func (p *Pool) Targets() []Target {
	return append([]Target(nil), p.targets...)
}

// Connect returns the live store for t's host, opening it if needed.
func (p *Pool) Connect(ctx context.Context, t Target) (Store, error) {
	label := t.Label()

	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.stores[label]; ok {
		return st, nil
	}
	st, err := p.open(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("connect to shard host %s: %w", label, err)
	}
	if st == nil {
		return nil, fmt.Errorf("connect to shard host %s: %w", label, errNoStore)
	}
	p.stores[label] = st
	return st, nil
}

// ForShard resolves a shard id to its target and live store.
func (p *Pool) ForShard(ctx context.Context, id types.ShardID) (Store, Target, error) {
	for _, t := range p.targets {
		if t.ID == id {
			st, err := p.Connect(ctx, t)
			return st, t, err
		}
	}
	return nil, Target{}, fmt.Errorf("%w: %q", ErrUnknownShard, id)
}

// Close closes every opened store that holds resources. Returns the first error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for label, st := range p.stores {
		if c, ok := st.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(p.stores, label)
	}
	return first
}
