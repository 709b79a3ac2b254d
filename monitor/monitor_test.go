package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pithecene-io/evq/adapter"
	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	fileA = "AAAAAAAAAAAAAA:inst-1"
	fileB = "BBBBBBBBBBBBBB:inst-2"
	fileC = "CCCCCCCCCCCCCC:inst-3"
)

type fakeRegistry struct {
	mu     sync.Mutex
	agents map[string]*registry.Agent
}

func (r *fakeRegistry) Lookup(_ context.Context, key types.AgentKey) (*registry.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[key.Filename()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrAgentNotFound, key)
	}
	return a, nil
}

func (r *fakeRegistry) Close() error { return nil }

type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.ScanCompletedEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, e *adapter.ScanCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

// hostStores opens pre-built stores by host label; labels in failing fail.
type hostStores struct {
	stores  map[string]blobstore.Store
	failing map[string]error
}

func (h *hostStores) open(_ context.Context, t blobstore.Target) (blobstore.Store, error) {
	if err, ok := h.failing[t.Label()]; ok {
		return nil, err
	}
	st, ok := h.stores[t.Label()]
	if !ok {
		return nil, errors.New("no store for " + t.Label())
	}
	return st, nil
}

func memStore(t *testing.T, files map[string][]int) blobstore.Store {
	t.Helper()
	st, err := blobstore.NewLodeStore(lode.NewMemoryFactory(), blobstore.DefaultCollection)
	require.NoError(t, err)
	for name, sizes := range files {
		for _, n := range sizes {
			_, err := st.Put(t.Context(), make([]byte, n), blobstore.PutMeta{Filename: name, Shard: "s"})
			require.NoError(t, err)
		}
	}
	return st
}

func target(id, host string) blobstore.Target {
	return blobstore.Target{ID: types.ShardID(id), Host: host, Backend: blobstore.Backend{Kind: blobstore.BackendMemory}}
}

func newPool(t *testing.T, targets []blobstore.Target, hs *hostStores) *blobstore.Pool {
	t.Helper()
	pool, err := blobstore.NewPool(targets, hs.open)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func synced(s string) *time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &ts
}

func TestRun_ScansEveryHostInOrder(t *testing.T) {
	hs := &hostStores{stores: map[string]blobstore.Store{
		"db1": memStore(t, map[string][]int{fileA: {100, 200, 300}, fileB: {50}}),
		"db2": memStore(t, map[string][]int{fileC: {10}}),
	}}
	reg := &fakeRegistry{agents: map[string]*registry.Agent{
		fileA: {Platform: "windows", LastSync: synced("2024-03-01T10:00:00Z")},
		fileC: {Platform: "linux"},
	}}
	notifier := &recordingAdapter{}
	collector := metrics.NewCollector("memory", false)

	m := New(Deps{
		Registry:  reg,
		Pool:      newPool(t, []blobstore.Target{target("shard0", "db1:27017"), target("shard1", "db2:27017")}, hs),
		Adapter:   notifier,
		Collector: collector,
	}, Options{})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)

	require.Len(t, rep.Hosts, 2)
	assert.Equal(t, "db1", rep.Hosts[0].Host)
	assert.Equal(t, "db2", rep.Hosts[1].Host)
	assert.Empty(t, rep.FailedHosts())

	require.Len(t, rep.Hosts[0].Entries, 1)
	e := rep.Hosts[0].Entries[0]
	assert.Equal(t, fileA, e.Filename)
	assert.Equal(t, int64(3), e.Count)
	assert.Equal(t, int64(600), e.Size)
	assert.Equal(t, "2024-03-01 10:00:00", e.LastSyncTime)
	require.Len(t, rep.Hosts[0].Reclaimed, 1)
	assert.Equal(t, fileB, rep.Hosts[0].Reclaimed[0].Filename)

	require.NotNil(t, rep.Metrics)
	assert.Equal(t, int64(2), rep.Metrics.HostsScanned)
	assert.Equal(t, int64(1), rep.Metrics.OrphansReclaimed)

	require.Len(t, notifier.events, 1)
	ev := notifier.events[0]
	assert.Equal(t, adapter.EventTypeScanCompleted, ev.EventType)
	assert.Equal(t, adapter.OutcomeSuccess, ev.Outcome)
	assert.Equal(t, types.NotificationVersion, ev.NotificationVersion)
	assert.NotEmpty(t, ev.RunID)
	require.Len(t, ev.Hosts, 2)
	assert.Equal(t, int64(50), ev.Hosts[0].ReclaimedBytes)
}

func TestRun_FailedHostIsMarkedAndOthersContinue(t *testing.T) {
	hs := &hostStores{
		stores: map[string]blobstore.Store{
			"db1": memStore(t, map[string][]int{fileA: {1}}),
			"db3": memStore(t, map[string][]int{fileC: {1}}),
		},
		failing: map[string]error{"db2": errors.New("connection refused")},
	}
	reg := &fakeRegistry{agents: map[string]*registry.Agent{
		fileA: {Platform: "windows"},
		fileC: {Platform: "linux"},
	}}
	notifier := &recordingAdapter{}
	collector := metrics.NewCollector("memory", false)

	m := New(Deps{
		Registry:  reg,
		Pool:      newPool(t, []blobstore.Target{target("s1", "db1"), target("s2", "db2"), target("s3", "db3")}, hs),
		Adapter:   notifier,
		Collector: collector,
	}, Options{})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"db2"}, rep.FailedHosts())
	assert.Len(t, rep.Hosts[0].Entries, 1)
	assert.Len(t, rep.Hosts[2].Entries, 1)
	assert.ErrorContains(t, rep.Hosts[1].Error, "connection refused")

	snap := collector.Snapshot()
	assert.Equal(t, int64(2), snap.HostsScanned)
	assert.Equal(t, int64(1), snap.HostsFailed)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, adapter.OutcomePartialFailure, notifier.events[0].Outcome)
	assert.Equal(t, 1, notifier.events[0].HostsFailed)
}

func TestRun_ParallelPreservesOrder(t *testing.T) {
	stores := map[string]blobstore.Store{}
	var targets []blobstore.Target
	agents := map[string]*registry.Agent{}
	for i := range 6 {
		host := fmt.Sprintf("db%d", i)
		name := fmt.Sprintf("%014d:inst", i)
		stores[host] = memStore(t, map[string][]int{name: {i + 1}})
		targets = append(targets, target(fmt.Sprintf("s%d", i), host))
		agents[name] = &registry.Agent{Platform: "windows"}
	}

	m := New(Deps{
		Registry: &fakeRegistry{agents: agents},
		Pool:     newPool(t, targets, &hostStores{stores: stores}),
	}, Options{Parallel: 3})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, rep.Hosts, 6)
	for i, h := range rep.Hosts {
		assert.Equal(t, fmt.Sprintf("db%d", i), h.Host)
		require.Len(t, h.Entries, 1)
		assert.Equal(t, int64(i+1), h.Entries[0].Size)
	}
}

func TestRun_SharedHostScannedOnce(t *testing.T) {
	hs := &hostStores{stores: map[string]blobstore.Store{
		"db1": memStore(t, map[string][]int{fileA: {1}}),
	}}
	m := New(Deps{
		Registry: &fakeRegistry{agents: map[string]*registry.Agent{fileA: {Platform: "osx"}}},
		Pool:     newPool(t, []blobstore.Target{target("s1", "db1:27017"), target("s2", "db1:27018")}, hs),
	}, Options{})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, rep.Hosts, 1)
	assert.Equal(t, "db1", rep.Hosts[0].Host)
}

func TestRun_DryRunKeepsOrphans(t *testing.T) {
	st := memStore(t, map[string][]int{fileA: {1}, fileB: {2}})
	m := New(Deps{
		Registry: &fakeRegistry{agents: map[string]*registry.Agent{fileA: {Platform: "osx"}}},
		Pool:     newPool(t, []blobstore.Target{target("s1", "db1")}, &hostStores{stores: map[string]blobstore.Store{"db1": st}}),
	}, Options{DryRun: true})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, rep.Hosts[0].Reclaimed, 1)
	assert.True(t, rep.Hosts[0].Reclaimed[0].DryRun)

	names, err := st.DistinctFilenames(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{fileA, fileB}, names)
}

func TestRun_NotificationFailureIgnored(t *testing.T) {
	notifier := &recordingAdapter{err: errors.New("webhook: failed after 1 attempts")}
	m := New(Deps{
		Registry: &fakeRegistry{},
		Pool:     newPool(t, []blobstore.Target{target("s1", "db1")}, &hostStores{stores: map[string]blobstore.Store{"db1": memStore(t, nil)}}),
		Adapter:  notifier,
	}, Options{})

	rep, err := m.Run(t.Context())
	require.NoError(t, err)
	assert.Len(t, rep.Hosts, 1)
	assert.Len(t, notifier.events, 1)
}

func TestRun_Canceled(t *testing.T) {
	m := New(Deps{
		Registry: &fakeRegistry{},
		Pool:     newPool(t, []blobstore.Target{target("s1", "db1")}, &hostStores{stores: map[string]blobstore.Store{"db1": memStore(t, nil)}}),
	}, Options{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_WithSQLiteRegistry(t *testing.T) {
	ctx := t.Context()
	reg, err := registry.OpenSQLite(ctx, registry.Config{
		Driver: registry.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()

	key, err := types.ParseFilename(fileA)
	require.NoError(t, err)
	require.NoError(t, reg.Put(ctx, registry.Agent{Key: key, Platform: "windows", LastSync: synced("2024-03-01T12:00:00Z")}))

	st := memStore(t, map[string][]int{fileA: {100, 200, 300}, fileB: {50}})
	m := New(Deps{
		Registry: reg,
		Pool:     newPool(t, []blobstore.Target{target("s1", "db1")}, &hostStores{stores: map[string]blobstore.Store{"db1": st}}),
	}, Options{})

	rep, err := m.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Hosts[0].Entries, 1)
	assert.Equal(t, "windows", rep.Hosts[0].Entries[0].Platform)
	assert.Equal(t, "2024-03-01 12:00:00", rep.Hosts[0].Entries[0].LastSyncTime)

	names, err := st.DistinctFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fileA}, names)
}

func TestHosts(t *testing.T) {
	got := Hosts([]blobstore.Target{
		target("s1", "db2:1"),
		target("s2", "db1"),
		target("s3", "db2:2"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "db2", got[0].Label())
	assert.Equal(t, "db1", got[1].Label())
}
