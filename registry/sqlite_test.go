package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/evq/types"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "registry.db")
	r, err := OpenSQLite(context.Background(), Config{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLite_LookupFound(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	synced := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := types.AgentKey{Ident: "RCS_0000000001", Instance: "abc"}
	require.NoError(t, r.Put(ctx, Agent{
		Key:      key,
		Platform: "windows",
		LastSync: &synced,
		Status:   types.SyncProcessing,
	}))

	got, err := r.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.Equal(t, "windows", got.Platform)
	require.NotNil(t, got.LastSync)
	assert.True(t, got.LastSync.Equal(synced))
	assert.Equal(t, types.SyncProcessing, got.Status)
}

func TestSQLite_LookupNeverSynced(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	key := types.AgentKey{Ident: "RCS_0000000002", Instance: "def"}
	require.NoError(t, r.Put(ctx, Agent{Key: key, Platform: "osx"}))

	got, err := r.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got.LastSync)
	assert.Equal(t, types.SyncIdle, got.Status)
}

func TestSQLite_LookupNotFound(t *testing.T) {
	r := openTestSQLite(t)

	_, err := r.Lookup(context.Background(), types.AgentKey{Ident: "RCS_0000000099", Instance: "zzz"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentNotFound))
}

func TestSQLite_DeletedAgentNotFound(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	key := types.AgentKey{Ident: "RCS_0000000003", Instance: "ghi"}
	require.NoError(t, r.Put(ctx, Agent{Key: key, Platform: "linux"}))
	require.NoError(t, r.MarkDeleted(ctx, key))

	_, err := r.Lookup(ctx, key)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	// Re-registering revives the agent.
	require.NoError(t, r.Put(ctx, Agent{Key: key, Platform: "linux"}))
	_, err = r.Lookup(ctx, key)
	assert.NoError(t, err)
}

func TestSQLite_PutReplaces(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	key := types.AgentKey{Ident: "RCS_0000000004", Instance: "jkl"}
	require.NoError(t, r.Put(ctx, Agent{Key: key, Platform: "android"}))
	require.NoError(t, r.Put(ctx, Agent{Key: key, Platform: "ios", Status: types.SyncGhost}))

	got, err := r.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ios", got.Platform)
	assert.Equal(t, types.SyncGhost, got.Status)
}

func TestSQLite_InstanceIsPartOfKey(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, Agent{
		Key:      types.AgentKey{Ident: "RCS_0000000005", Instance: "one"},
		Platform: "windows",
	}))

	_, err := r.Lookup(ctx, types.AgentKey{Ident: "RCS_0000000005", Instance: "two"})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestSQLite_LookupAfterClose(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "registry.db")
	r, err := OpenSQLite(context.Background(), Config{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Lookup(context.Background(), types.AgentKey{Ident: "RCS_0000000001", Instance: "abc"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAgentNotFound), "closed database must not look like a missing agent")
}
