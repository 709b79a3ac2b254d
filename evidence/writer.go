// Package evidence is the shard-aware ingestion path for agent evidence.
package evidence

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/log"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/shard"
	"github.com/pithecene-io/evq/types"
)

// ErrInvalidShard is matched by every *InvalidShardError.
var ErrInvalidShard = errors.New("invalid shard")

// InvalidShardError means an agent has no usable shard assignment.
// Nothing was written.
type InvalidShardError struct {
	Key   types.AgentKey
	Shard types.ShardID
	Err   error
}

func (e *InvalidShardError) Error() string {
	if e.Shard.IsZero() {
		return fmt.Sprintf("invalid shard for %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("invalid shard %q for %s: %v", e.Shard, e.Key, e.Err)
}

func (e *InvalidShardError) Unwrap() error { return e.Err }

// Is matches ErrInvalidShard.
func (e *InvalidShardError) Is(target error) bool {
	return target == ErrInvalidShard
}

// Writer stores evidence on the shard its agent is assigned to.
// Safe for concurrent use.
type Writer struct {
	resolver  shard.Resolver
	pool      *blobstore.Pool
	logger    *log.Logger
	collector *metrics.Collector
}

// NewWriter creates a writer. logger and collector may be nil.
func NewWriter(resolver shard.Resolver, pool *blobstore.Pool, logger *log.Logger, collector *metrics.Collector) *Writer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Writer{
		resolver:  resolver,
		pool:      pool,
		logger:    logger,
		collector: collector,
	}
}

// Store writes content for (ident, instance) to its shard and returns the
// blob handle and the shard id recorded on the blob.
//
// The shard is resolved before anything is written. A missing assignment,
// or one naming a shard this process has no host for, fails with
// *InvalidShardError. Storage failures are returned as is and not retried.
func (w *Writer) Store(ctx context.Context, ident, instance string, content []byte) (blobstore.Handle, types.ShardID, error) {
	key := types.AgentKey{Ident: ident, Instance: instance}
	filename, err := types.EncodeFilename(key)
	if err != nil {
		return "", "", err
	}

	id, err := w.resolver.Resolve(ctx, key)
	switch {
	case errors.Is(err, shard.ErrNoShard):
		w.collector.IncInvalidShard()
		return "", "", &InvalidShardError{Key: key, Err: err}
	case err != nil:
		return "", "", fmt.Errorf("resolve shard for %s: %w", key, err)
	case id.IsZero():
		w.collector.IncInvalidShard()
		return "", "", &InvalidShardError{Key: key, Err: shard.ErrNoShard}
	}

	store, target, err := w.pool.ForShard(ctx, id)
	if errors.Is(err, blobstore.ErrUnknownShard) {
		w.collector.IncInvalidShard()
		return "", "", &InvalidShardError{Key: key, Shard: id, Err: err}
	}
	if err != nil {
		return "", "", err
	}

	w.logger.Debug("store evidence", map[string]any{
		"ident":    ident,
		"instance": instance,
		"shard":    id.String(),
		"host":     target.Label(),
		"size":     len(content),
	})

	handle, err := store.Put(ctx, content, blobstore.PutMeta{Filename: filename, Shard: id})
	if err != nil {
		return "", "", err
	}
	w.collector.IncEvidenceStored()
	return handle, id, nil
}
