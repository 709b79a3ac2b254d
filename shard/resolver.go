// Package shard resolves which storage shard an agent's evidence belongs to.
//
// The assignment algorithm lives outside this module. Resolvers only read
// the result: a Redis hash maintained by the assignment service, a static
// table from configuration, or either behind a TTL cache.
package shard

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/evq/types"
)

// ErrNoShard means the agent has no shard assignment.
var ErrNoShard = errors.New("no shard assigned")

// Resolver maps an agent to its shard.
//
// Resolve returns ErrNoShard (possibly wrapped) when the agent has no
// assignment. It never returns a zero ShardID with a nil error.
type Resolver interface {
	Resolve(ctx context.Context, key types.AgentKey) (types.ShardID, error)
}

// StaticResolver resolves from a fixed table keyed by composite filename.
type StaticResolver struct {
	assignments map[string]types.ShardID
}

// NewStaticResolver builds a resolver from filename -> shard id pairs.
// Filenames must parse as agent keys and shard ids must be non-empty.
func NewStaticResolver(assignments map[string]types.ShardID) (*StaticResolver, error) {
	table := make(map[string]types.ShardID, len(assignments))
	for filename, id := range assignments {
		if _, err := types.ParseFilename(filename); err != nil {
			return nil, fmt.Errorf("static assignment: %w", err)
		}
		if id.IsZero() {
			return nil, fmt.Errorf("static assignment for %q has empty shard", filename)
		}
		table[filename] = id
	}
	return &StaticResolver{assignments: table}, nil
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, key types.AgentKey) (types.ShardID, error) {
	id, ok := r.assignments[key.Filename()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoShard, key)
	}
	return id, nil
}

// Verify StaticResolver implements Resolver.
var _ Resolver = (*StaticResolver)(nil)
