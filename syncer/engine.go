package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/history"
	"github.com/fitroom/fitroom-client/localstore"
	"github.com/fitroom/fitroom-client/model"
	"github.com/fitroom/fitroom-client/netmon"
	"github.com/fitroom/fitroom-client/queue"
	"github.com/fitroom/fitroom-client/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSchemaMissing marks a backend configuration problem (table or
	// endpoint absent). The engine degrades to local-only operation
	// instead of surfacing it as a sync error.
	ErrSchemaMissing = errors.New("syncer: remote schema missing")

	// ErrNotSignedIn is returned by operations that require a principal.
	ErrNotSignedIn = errors.New("syncer: not signed in")
)

// Collection describes one synchronized entity collection: its natural
// key and its pure merge function.
type Collection[E any] struct {
	Name    string
	Key     func(E) string
	Resolve func(local, remote E) E
}

// Remote is the backend store for one collection. UpsertMany must be
// keyed on the natural key, so replaying a batch is idempotent.
type Remote[E any] interface {
	FetchAll(ctx context.Context, ownerID string) ([]E, error)
	UpsertMany(ctx context.Context, items []E) error
	DeleteMany(ctx context.Context, keys []string) error
}

// Engine synchronizes one collection: optimistic local writes queued
// while offline, pull/push/sync against the remote store, and realtime
// deltas folded in through the same merge function. It owns its
// collection's state and SyncMetadata exclusively; everything else
// reads copies.
type Engine[E any] struct {
	coll    Collection[E]
	remote  Remote[E]
	session *auth.Session
	monitor *netmon.Monitor
	store   *localstore.Store
	queue   *queue.Queue
	hist    *history.Recorder
	logger  *zap.Logger

	mu           sync.RWMutex
	items        map[string]E
	deletes      map[string]bool
	meta         model.SyncMetadata
	schemaWarned bool
}

// NewEngine creates an Engine and restores its durable snapshot. hist
// may be nil.
func NewEngine[E any](
	coll Collection[E],
	remote Remote[E],
	session *auth.Session,
	monitor *netmon.Monitor,
	store *localstore.Store,
	hist *history.Recorder,
	logger *zap.Logger,
) (*Engine[E], error) {
	e := &Engine[E]{
		coll:    coll,
		remote:  remote,
		session: session,
		monitor: monitor,
		store:   store,
		queue:   queue.New(store.DB(), coll.Name, logger),
		hist:    hist,
		logger:  logger,
		items:   make(map[string]E),
		deletes: make(map[string]bool),
		meta:    model.SyncMetadata{Collection: coll.Name, SyncStatus: model.SyncIdle},
	}
	if err := e.load(); err != nil {
		return nil, fmt.Errorf("syncer: restore %s: %w", coll.Name, err)
	}
	return e, nil
}

// Queue exposes the collection's mutation queue (read paths for UI).
func (e *Engine[E]) Queue() *queue.Queue {
	return e.queue
}

// Snapshot returns a copy of the current collection state.
func (e *Engine[E]) Snapshot() []E {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedLocked()
}

// Get returns one entity by natural key.
func (e *Engine[E]) Get(key string) (E, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.items[key]
	return v, ok
}

// Metadata returns a copy of the collection's sync metadata.
func (e *Engine[E]) Metadata() model.SyncMetadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta
}

// Mutate applies an optimistic local write and enqueues it in the same
// atomic step: the in-memory projection, the durable snapshot, and the
// queued mutation commit together or not at all.
func (e *Engine[E]) Mutate(opType string, payload any, apply func(items map[string]E, deletes map[string]bool)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prevItems, prevDeletes := e.items, e.deletes
	items := cloneMap(e.items)
	deletes := cloneSet(e.deletes)
	apply(items, deletes)
	e.items, e.deletes = items, deletes

	err := e.store.Update(func(tx *gorm.DB) error {
		if err := e.persistIn(tx); err != nil {
			return err
		}
		return e.queue.EnqueueIn(tx, opType, payload)
	})
	if err != nil {
		e.items, e.deletes = prevItems, prevDeletes
		return err
	}
	if n, err := e.queue.Count(); err == nil {
		e.meta.PendingMutations = n
	}
	return nil
}

// ApplyDelta folds in a foreign mutation from the realtime stream. It
// bypasses the mutation queue: the write did not originate here and
// must not be re-pushed. Inserts and updates go through the merge
// function so a delta racing a pull lands deterministically.
func (e *Engine[E]) ApplyDelta(kind transport.EventKind, row E) {
	key := e.coll.Key(row)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case transport.EventInsert, transport.EventUpdate:
		if e.deletes[key] {
			return // locally removed, not yet pushed
		}
		items := cloneMap(e.items)
		if local, ok := items[key]; ok {
			items[key] = e.coll.Resolve(local, row)
		} else {
			items[key] = row
		}
		e.items = items
	case transport.EventDelete:
		items := cloneMap(e.items)
		delete(items, key)
		e.items = items
	default:
		return
	}

	if err := e.store.Update(e.persistIn); err != nil {
		e.logger.Warn("delta persist failed",
			zap.String("collection", e.coll.Name), zap.Error(err))
	}
}

// Consume applies row deltas from a realtime channel until it closes.
// Status errors are logged as recoverable; the next pull repairs any gap.
func (e *Engine[E]) Consume(ch *transport.Channel) {
	go func() {
		for ev := range ch.Events() {
			switch ev.Kind {
			case transport.EventInsert, transport.EventUpdate, transport.EventDelete:
				var row E
				if err := json.Unmarshal(ev.Row, &row); err != nil {
					e.logger.Warn("malformed delta dropped",
						zap.String("collection", e.coll.Name), zap.Error(err))
					continue
				}
				e.ApplyDelta(ev.Kind, row)
			case transport.EventStatus:
				if ev.Status == transport.StatusChannelError || ev.Status == transport.StatusTimedOut {
					e.logger.Warn("realtime channel degraded, cache may be stale until next pull",
						zap.String("collection", e.coll.Name),
						zap.String("status", string(ev.Status)))
				}
			}
		}
	}()
}

// Pull fetches the remote snapshot, merges it with local state through
// the collection's resolve function, and replaces local state
// atomically. Remote-only items are adopted unless locally
// pending-delete; local-only items are kept for the next push.
//
// Transient failures are recorded in SyncMetadata and also returned:
// the return value is the signal Sync uses to skip the following push.
// UI code reads sync state from Metadata, not from this error. A
// missing backend schema degrades to local-only silently.
func (e *Engine[E]) Pull(ctx context.Context) error {
	uid := e.session.CurrentUserID()
	if uid == "" {
		e.logger.Warn("pull skipped: not signed in",
			zap.String("collection", e.coll.Name))
		return nil
	}

	start := time.Now()
	e.setStatus(model.SyncSyncing, "")

	remoteItems, err := e.remote.FetchAll(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrSchemaMissing) {
			e.warnSchemaOnce(err)
			e.setStatus(model.SyncIdle, "")
			e.record("pull", "skipped", "", 0, start)
			return nil
		}
		e.setStatus(model.SyncError, err.Error())
		e.record("pull", "error", err.Error(), 0, start)
		e.logger.Warn("pull failed",
			zap.String("collection", e.coll.Name), zap.Error(err))
		return err
	}

	e.mu.Lock()
	merged := make(map[string]E, len(remoteItems))
	for _, r := range remoteItems {
		k := e.coll.Key(r)
		if e.deletes[k] {
			continue // removed locally, delete not yet pushed
		}
		if l, ok := e.items[k]; ok {
			merged[k] = e.coll.Resolve(l, r)
		} else {
			merged[k] = r
		}
	}
	for k, l := range e.items {
		if _, ok := merged[k]; !ok {
			merged[k] = l
		}
	}
	e.items = merged
	now := time.Now()
	e.meta.LastSyncAt = &now
	e.meta.LastSyncHash = e.hashLocked()
	e.meta.SyncStatus = model.SyncSuccess
	e.meta.SyncError = ""
	count := len(merged)
	if err := e.store.Update(e.persistIn); err != nil {
		e.logger.Warn("pull persist failed",
			zap.String("collection", e.coll.Name), zap.Error(err))
	}
	e.mu.Unlock()

	e.record("pull", "success", "", count, start)
	e.logger.Info("pull complete",
		zap.String("collection", e.coll.Name),
		zap.Int("items", count))
	return nil
}

// Push uploads the full local collection via idempotent upsert, then
// issues pending deletes, then confirms the drained mutation batch. It
// is a no-op when signed out or offline — an attempt that is guaranteed
// to fail must not churn the error state. A failed push leaves the
// queue and pending deletes untouched and is rethrown to the caller.
func (e *Engine[E]) Push(ctx context.Context) error {
	uid := e.session.CurrentUserID()
	if uid == "" {
		e.logger.Warn("push skipped: not signed in",
			zap.String("collection", e.coll.Name))
		return nil
	}
	if !e.monitor.IsOnline() {
		e.logger.Debug("push skipped: offline",
			zap.String("collection", e.coll.Name))
		return nil
	}

	start := time.Now()
	batch, err := e.queue.Pending()
	if err != nil {
		return err
	}

	e.mu.RLock()
	items := e.sortedLocked()
	deleteKeys := make([]string, 0, len(e.deletes))
	for k := range e.deletes {
		deleteKeys = append(deleteKeys, k)
	}
	sort.Strings(deleteKeys)
	e.mu.RUnlock()

	if len(items) > 0 {
		if err := e.remote.UpsertMany(ctx, items); err != nil {
			e.setStatus(model.SyncError, err.Error())
			e.record("push", "error", err.Error(), len(items), start)
			return fmt.Errorf("syncer: push %s: %w", e.coll.Name, err)
		}
	}
	if len(deleteKeys) > 0 {
		if err := e.remote.DeleteMany(ctx, deleteKeys); err != nil {
			e.setStatus(model.SyncError, err.Error())
			e.record("push", "error", err.Error(), len(items), start)
			return fmt.Errorf("syncer: push deletes %s: %w", e.coll.Name, err)
		}
	}

	if err := e.queue.Confirm(batch); err != nil {
		return err
	}

	e.mu.Lock()
	// Only clear the delete keys that were actually uploaded; a remove
	// racing the push stays pending.
	deletes := cloneSet(e.deletes)
	for _, k := range deleteKeys {
		delete(deletes, k)
	}
	e.deletes = deletes
	if n, err := e.queue.Count(); err == nil {
		e.meta.PendingMutations = n
	} else {
		e.meta.PendingMutations = 0
	}
	e.meta.SyncStatus = model.SyncSuccess
	e.meta.SyncError = ""
	if err := e.store.Update(e.persistIn); err != nil {
		e.logger.Warn("push persist failed",
			zap.String("collection", e.coll.Name), zap.Error(err))
	}
	e.mu.Unlock()

	e.record("push", "success", "", len(items), start)
	e.logger.Info("push complete",
		zap.String("collection", e.coll.Name),
		zap.Int("items", len(items)),
		zap.Int("mutations", len(batch)))
	return nil
}

// Sync runs Pull then Push sequentially. Pull goes first so remote-only
// state is incorporated before the local view is re-asserted; a failed
// pull skips the push so a concurrent remote write the pull would have
// reported is not clobbered.
func (e *Engine[E]) Sync(ctx context.Context) error {
	if err := e.Pull(ctx); err != nil {
		return nil // absorbed into metadata; queue preserved for retry
	}
	return e.Push(ctx)
}

// ---- internals ----

func (e *Engine[E]) snapshotKey() string { return "snapshot:" + e.coll.Name }
func (e *Engine[E]) deletesKey() string  { return "deletes:" + e.coll.Name }
func (e *Engine[E]) metaKey() string     { return "meta:" + e.coll.Name }

func (e *Engine[E]) load() error {
	if raw, err := e.store.Get(e.snapshotKey()); err == nil {
		var items []E
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		for _, it := range items {
			e.items[e.coll.Key(it)] = it
		}
	} else if !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	if raw, err := e.store.Get(e.deletesKey()); err == nil {
		var keys []string
		if err := json.Unmarshal(raw, &keys); err != nil {
			return err
		}
		for _, k := range keys {
			e.deletes[k] = true
		}
	} else if !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	if raw, err := e.store.Get(e.metaKey()); err == nil {
		if err := json.Unmarshal(raw, &e.meta); err != nil {
			return err
		}
	} else if !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	// A crash mid-sync must not restore as "syncing".
	e.meta.Collection = e.coll.Name
	if e.meta.SyncStatus == model.SyncSyncing {
		e.meta.SyncStatus = model.SyncIdle
	}
	if n, err := e.queue.Count(); err == nil {
		e.meta.PendingMutations = n
	}
	return nil
}

// persistIn writes snapshot, delete set, and metadata inside tx.
// Caller holds e.mu.
func (e *Engine[E]) persistIn(tx *gorm.DB) error {
	items := e.sortedLocked()
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := localstore.SetIn(tx, e.snapshotKey(), raw); err != nil {
		return err
	}

	keys := make([]string, 0, len(e.deletes))
	for k := range e.deletes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rawKeys, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	if err := localstore.SetIn(tx, e.deletesKey(), rawKeys); err != nil {
		return err
	}

	rawMeta, err := json.Marshal(e.meta)
	if err != nil {
		return err
	}
	return localstore.SetIn(tx, e.metaKey(), rawMeta)
}

// sortedLocked returns items ordered by natural key. Caller holds e.mu.
func (e *Engine[E]) sortedLocked() []E {
	keys := make([]string, 0, len(e.items))
	for k := range e.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]E, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.items[k])
	}
	return out
}

// hashLocked fingerprints the snapshot for LastSyncHash. Caller holds e.mu.
func (e *Engine[E]) hashLocked() string {
	raw, err := json.Marshal(e.sortedLocked())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (e *Engine[E]) setStatus(status model.SyncStatus, msg string) {
	e.mu.Lock()
	e.meta.SyncStatus = status
	e.meta.SyncError = msg
	if err := e.store.Update(e.persistIn); err != nil {
		e.logger.Warn("metadata persist failed",
			zap.String("collection", e.coll.Name), zap.Error(err))
	}
	e.mu.Unlock()
}

func (e *Engine[E]) warnSchemaOnce(err error) {
	e.mu.Lock()
	warned := e.schemaWarned
	e.schemaWarned = true
	e.mu.Unlock()
	if !warned {
		e.logger.Warn("remote schema missing, running local-only",
			zap.String("collection", e.coll.Name), zap.Error(err))
	}
}

func (e *Engine[E]) record(op, outcome, errMsg string, items int, start time.Time) {
	if e.hist == nil {
		return
	}
	e.hist.Record(history.Entry{
		Collection: e.coll.Name,
		Op:         op,
		Outcome:    outcome,
		Error:      errMsg,
		Items:      items,
		Duration:   time.Since(start),
	})
}

func cloneMap[E any](in map[string]E) map[string]E {
	out := make(map[string]E, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k := range in {
		out[k] = true
	}
	return out
}
