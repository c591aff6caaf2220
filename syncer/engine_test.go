package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/localstore"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/netmon"
	"github.com/fitroom/fitroom-client/testutil"
	"github.com/fitroom/fitroom-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRemote is an in-memory Remote[model.RelationshipEdge] with
// injectable failures.
type fakeRemote struct {
	mu          sync.Mutex
	rows        map[string]model.RelationshipEdge
	fetchErr    error
	upsertErr   error
	deleteErr   error
	upsertCalls int
	deleteCalls int
	deletedKeys []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]model.RelationshipEdge)}
}

func (f *fakeRemote) FetchAll(ctx context.Context, ownerID string) ([]model.RelationshipEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]model.RelationshipEdge, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) UpsertMany(ctx context.Context, items []model.RelationshipEdge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, it := range items {
		f.rows[it.Key()] = it
	}
	return nil
}

func (f *fakeRemote) DeleteMany(ctx context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, k := range keys {
		delete(f.rows, k)
		f.deletedKeys = append(f.deletedKeys, k)
	}
	return nil
}

func edgeBetween(owner, other string, status model.EdgeStatus, ts int64) model.RelationshipEdge {
	return model.RelationshipEdge{OwnerID: owner, OtherID: other, Status: status, UpdatedAtMs: ts}
}

type engineEnv struct {
	engine  *Engine[model.RelationshipEdge]
	remote  *fakeRemote
	monitor *netmon.Monitor
	store   *localstore.Store
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	store := testutil.SetupTestStore(t)
	return reopenEngine(t, store, newFakeRemote())
}

// reopenEngine builds an engine over an existing store, simulating an
// app restart when called with a store that already holds state.
func reopenEngine(t *testing.T, store *localstore.Store, remote *fakeRemote) *engineEnv {
	t.Helper()
	monitor := netmon.NewMonitor(nil, zap.NewNop())
	eng, err := NewEngine(EdgesCollection(), remote,
		testutil.SignedInSession(t, "alice"), monitor, store, nil, zap.NewNop())
	require.NoError(t, err)
	return &engineEnv{engine: eng, remote: remote, monitor: monitor, store: store}
}

func (env *engineEnv) setEdge(t *testing.T, e model.RelationshipEdge) {
	t.Helper()
	require.NoError(t, env.engine.Mutate("upsert", nil,
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			items[e.Key()] = e
			delete(deletes, e.Key())
		}))
}

func (env *engineEnv) removeEdge(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, env.engine.Mutate("remove", nil,
		func(items map[string]model.RelationshipEdge, deletes map[string]bool) {
			delete(items, key)
			deletes[key] = true
		}))
}

func TestEngine_MutationsSurviveRestart(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)

	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))
	env.setEdge(t, edgeBetween("alice", "carol", model.EdgeFriends, 200))
	env.setEdge(t, edgeBetween("alice", "dave", model.EdgePending, 300))

	// Same store, fresh engine: simulates app restart.
	env2 := reopenEngine(t, env.store, newFakeRemote())

	assert.Len(t, env2.engine.Snapshot(), 3)
	assert.Equal(t, 3, env2.engine.Metadata().PendingMutations)

	got, ok := env2.engine.Get("alice|carol")
	require.True(t, ok)
	assert.Equal(t, model.EdgeFriends, got.Status)
}

func TestEngine_PushOfflineIsNoOp(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)

	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))
	require.NoError(t, env.engine.Push(context.Background()))

	assert.Equal(t, 0, env.remote.upsertCalls)
	n, err := env.engine.Queue().Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "queue must stay intact while offline")
}

func TestEngine_PushDrainsQueueOnce(t *testing.T) {
	env := newEngineEnv(t)

	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))
	env.setEdge(t, edgeBetween("alice", "carol", model.EdgeFriends, 200))

	require.NoError(t, env.engine.Push(context.Background()))

	n, err := env.engine.Queue().Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, env.remote.rows, 2)

	meta := env.engine.Metadata()
	assert.Equal(t, model.SyncSuccess, meta.SyncStatus)
	assert.Equal(t, 0, meta.PendingMutations)
}

func TestEngine_PushFailurePreservesQueue(t *testing.T) {
	env := newEngineEnv(t)
	env.remote.upsertErr = errors.New("boom")

	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))
	err := env.engine.Push(context.Background())
	require.Error(t, err)

	n, qerr := env.engine.Queue().Count()
	require.NoError(t, qerr)
	assert.Equal(t, 1, n, "failed push must not drain the queue")

	meta := env.engine.Metadata()
	assert.Equal(t, model.SyncError, meta.SyncStatus)
	assert.Equal(t, "boom", meta.SyncError)

	// Retry after the failure clears succeeds and drains.
	env.remote.upsertErr = nil
	require.NoError(t, env.engine.Push(context.Background()))
	n, qerr = env.engine.Queue().Count()
	require.NoError(t, qerr)
	assert.Equal(t, 0, n)
}

func TestEngine_PushUploadsPendingDeletes(t *testing.T) {
	env := newEngineEnv(t)
	env.remote.rows["alice|bob"] = edgeBetween("alice", "bob", model.EdgeFriends, 50)

	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeFriends, 100))
	env.removeEdge(t, "alice|bob")

	require.NoError(t, env.engine.Push(context.Background()))
	assert.Equal(t, []string{"alice|bob"}, env.remote.deletedKeys)
	assert.Empty(t, env.remote.rows)

	// The delete set is cleared; a second push issues no deletes.
	require.NoError(t, env.engine.Push(context.Background()))
	assert.Equal(t, 1, env.remote.deleteCalls)
}

func TestEngine_PullMergesRemoteAndKeepsLocalOnly(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeBlocked, 100))
	env.setEdge(t, edgeBetween("alice", "carol", model.EdgeRequested, 100))

	// Remote has a conflicting (newer but lower priority) bob edge and a
	// remote-only dave edge.
	env.remote.rows["alice|bob"] = edgeBetween("alice", "bob", model.EdgeFriends, 999)
	env.remote.rows["alice|dave"] = edgeBetween("alice", "dave", model.EdgePending, 500)

	require.NoError(t, env.engine.Pull(context.Background()))

	bob, _ := env.engine.Get("alice|bob")
	assert.Equal(t, model.EdgeBlocked, bob.Status, "local block must survive pull")

	_, ok := env.engine.Get("alice|dave")
	assert.True(t, ok, "remote-only edge must be adopted")

	carol, ok := env.engine.Get("alice|carol")
	require.True(t, ok, "local-only edge must be kept for the next push")
	assert.Equal(t, model.EdgeRequested, carol.Status)

	meta := env.engine.Metadata()
	assert.Equal(t, model.SyncSuccess, meta.SyncStatus)
	assert.NotNil(t, meta.LastSyncAt)
	assert.NotEmpty(t, meta.LastSyncHash)
}

func TestEngine_PullSkipsPendingDeleteKeys(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeFriends, 100))
	env.removeEdge(t, "alice|bob")

	env.remote.rows["alice|bob"] = edgeBetween("alice", "bob", model.EdgeFriends, 100)
	require.NoError(t, env.engine.Pull(context.Background()))

	_, ok := env.engine.Get("alice|bob")
	assert.False(t, ok, "pull must not resurrect a locally removed edge")
}

func TestEngine_PullErrorRecordedAndSyncSkipsPush(t *testing.T) {
	env := newEngineEnv(t)
	env.remote.fetchErr = errors.New("network down")
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))

	require.Error(t, env.engine.Pull(context.Background()))
	meta := env.engine.Metadata()
	assert.Equal(t, model.SyncError, meta.SyncStatus)
	assert.Equal(t, "network down", meta.SyncError)

	// Sync absorbs the pull failure and must not attempt the push.
	require.NoError(t, env.engine.Sync(context.Background()))
	assert.Equal(t, 0, env.remote.upsertCalls)

	n, err := env.engine.Queue().Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_SchemaMissingDegradesToLocalOnly(t *testing.T) {
	env := newEngineEnv(t)
	env.remote.fetchErr = ErrSchemaMissing
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))

	require.NoError(t, env.engine.Pull(context.Background()))

	meta := env.engine.Metadata()
	assert.Equal(t, model.SyncIdle, meta.SyncStatus, "missing schema is not a sync error")
	assert.Empty(t, meta.SyncError)

	// Local state untouched.
	_, ok := env.engine.Get("alice|bob")
	assert.True(t, ok)
}

func TestEngine_SyncPullThenPush(t *testing.T) {
	env := newEngineEnv(t)
	env.remote.rows["alice|dave"] = edgeBetween("alice", "dave", model.EdgePending, 500)
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeRequested, 100))

	require.NoError(t, env.engine.Sync(context.Background()))

	// Remote-only edge adopted by the pull, then re-asserted by the push
	// alongside the local write.
	assert.Len(t, env.remote.rows, 2)
	n, err := env.engine.Queue().Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_ApplyDeltaMergesAndDeletes(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)

	env.engine.ApplyDelta(transport.EventInsert, edgeBetween("alice", "bob", model.EdgeRequested, 100))
	got, ok := env.engine.Get("alice|bob")
	require.True(t, ok)
	assert.Equal(t, model.EdgeRequested, got.Status)

	// An update delta goes through the merge, so a stale lower-priority
	// frame cannot demote local state.
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeBlocked, 200))
	env.engine.ApplyDelta(transport.EventUpdate, edgeBetween("alice", "bob", model.EdgeFriends, 999))
	got, _ = env.engine.Get("alice|bob")
	assert.Equal(t, model.EdgeBlocked, got.Status)

	env.engine.ApplyDelta(transport.EventDelete, edgeBetween("alice", "bob", model.EdgeBlocked, 999))
	_, ok = env.engine.Get("alice|bob")
	assert.False(t, ok)

	// Deltas never touch the mutation queue.
	n, err := env.engine.Queue().Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the explicit local write is queued")
}

func TestEngine_ApplyDeltaIgnoresPendingDeleteKey(t *testing.T) {
	env := newEngineEnv(t)
	env.monitor.SetOnline(false)
	env.setEdge(t, edgeBetween("alice", "bob", model.EdgeFriends, 100))
	env.removeEdge(t, "alice|bob")

	env.engine.ApplyDelta(transport.EventUpdate, edgeBetween("alice", "bob", model.EdgeFriends, 999))
	_, ok := env.engine.Get("alice|bob")
	assert.False(t, ok)
}

func authSessionSignedOut() *auth.Session {
	return auth.NewSession(zap.NewNop())
}

func TestEngine_SignedOutPullPushAreNoOps(t *testing.T) {
	store := testutil.SetupTestStore(t)
	remote := newFakeRemote()
	monitor := netmon.NewMonitor(nil, zap.NewNop())
	eng, err := NewEngine(EdgesCollection(), remote,
		authSessionSignedOut(), monitor, store, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, eng.Pull(context.Background()))
	require.NoError(t, eng.Push(context.Background()))
	assert.Equal(t, 0, remote.upsertCalls)
	assert.Equal(t, model.SyncIdle, eng.Metadata().SyncStatus)
}
