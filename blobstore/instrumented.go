package blobstore

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/pithecene-io/evq/metrics"
)

// InstrumentedStore wraps a Store, records per-call outcomes on a metrics
// collector and optionally paces calls through a rate limiter.
type InstrumentedStore struct {
	inner     Store
	collector *metrics.Collector
	limiter   *rate.Limiter
}

// NewInstrumentedStore wraps inner. A nil limiter disables pacing.
func NewInstrumentedStore(inner Store, collector *metrics.Collector, limiter *rate.Limiter) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, collector: collector, limiter: limiter}
}

// NewLimiter builds a limiter for opsPerSecond, or nil when it is zero.
func NewLimiter(opsPerSecond float64) *rate.Limiter {
	if opsPerSecond <= 0 {
		return nil
	}
	burst := int(opsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(opsPerSecond), burst)
}

func (s *InstrumentedStore) wait(ctx context.Context, op string) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return NewStorageError(ErrThrottled, op, "", err)
	}
	return nil
}

// Put delegates to the inner store and records success or failure.
func (s *InstrumentedStore) Put(ctx context.Context, content []byte, meta PutMeta) (Handle, error) {
	if err := s.wait(ctx, OpWrite); err != nil {
		s.collector.IncStoreWriteFailure()
		return "", err
	}
	h, err := s.inner.Put(ctx, content, meta)
	if err != nil {
		s.collector.IncStoreWriteFailure()
	} else {
		s.collector.IncStoreWriteSuccess()
	}
	return h, err
}

// DistinctFilenames delegates to the inner store and records failures.
func (s *InstrumentedStore) DistinctFilenames(ctx context.Context) ([]string, error) {
	if err := s.wait(ctx, OpList); err != nil {
		s.collector.IncStoreReadFailure()
		return nil, err
	}
	names, err := s.inner.DistinctFilenames(ctx)
	if err != nil {
		s.collector.IncStoreReadFailure()
	}
	return names, err
}

// ByFilename delegates to the inner store and records failures.
func (s *InstrumentedStore) ByFilename(ctx context.Context, filename string) ([]BlobInfo, error) {
	if err := s.wait(ctx, OpRead); err != nil {
		s.collector.IncStoreReadFailure()
		return nil, err
	}
	blobs, err := s.inner.ByFilename(ctx, filename)
	if err != nil {
		s.collector.IncStoreReadFailure()
	}
	return blobs, err
}

// DeleteByFilename delegates to the inner store and records success or failure.
func (s *InstrumentedStore) DeleteByFilename(ctx context.Context, filename string) error {
	if err := s.wait(ctx, OpDelete); err != nil {
		s.collector.IncStoreDeleteFailure()
		return err
	}
	err := s.inner.DeleteByFilename(ctx, filename)
	if err != nil {
		s.collector.IncStoreDeleteFailure()
	} else {
		s.collector.IncStoreDeleteSuccess()
	}
	return err
}

// Close closes the inner store when it holds resources.
func (s *InstrumentedStore) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() Store {
	return s.inner
}

var (
	_ Store = (*InstrumentedStore)(nil)

	// errNoStore guards against a nil inner store in the pool.
	errNoStore = errors.New("blobstore: nil store")
)
