// Package engine is the offline-first reconciliation engine.
//
// Every read and mutation goes through the Engine, which decides per call
// whether to talk to the remote store or only to the local store:
//
//	caller -> Engine -> Oracle.IsOnline()
//	                 -> remote.Client (online, bounded by the fetch budget)
//	                 -> LocalStore    (always)
//
// A remote failure never loses a write: the record is stored locally with a
// pending sync state and the sweeper pushes it later. Records created while
// offline get a locally-minted id that the sweeper replaces with the remote
// id.
//
// Mutations publish notifications in two stages. A tentative event is
// published before the durable write so views can update optimistically; a
// committed event follows once the local store holds the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/query"
	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

// DefaultFetchTimeout bounds every remote call.
const DefaultFetchTimeout = 8 * time.Second

// Config holds engine configuration.
type Config struct {
	// FetchTimeout bounds each remote call (default: 8s)
	FetchTimeout time.Duration

	// Publisher receives notifications (default: discard)
	Publisher notify.Publisher

	// Logger for engine activity (default: slog.Default())
	Logger *slog.Logger

	// Now is the clock (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: DefaultFetchTimeout,
		Publisher:    notify.Discard,
		Logger:       slog.Default(),
		Now:          time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.Publisher == nil {
		c.Publisher = d.Publisher
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Engine reconciles the local store with the remote store.
type Engine struct {
	local  LocalStore
	remote remote.Client
	oracle connectivity.Oracle
	config Config
	logger *slog.Logger
}

// New creates an engine.
func New(local LocalStore, rc remote.Client, oracle connectivity.Oracle, config Config) *Engine {
	config = config.withDefaults()
	return &Engine{
		local:  local,
		remote: rc,
		oracle: oracle,
		config: config,
		logger: config.Logger.With("component", "engine"),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Online reports the oracle's current reading.
func (e *Engine) Online() bool {
	return e.oracle.IsOnline()
}

// FetchAll returns the active records under parentID ordered by createdAt.
//
// Online, the remote set replaces the cached copies for that parent before
// the cache is read back, so records with pending local changes keep their
// local version. A connectivity failure falls back to the cache. Any other
// remote failure returns a *FetchError holding the cached view.
func (e *Engine) FetchAll(ctx context.Context, coll schema.Collection, parentID string) ([]schema.Item, error) {
	items, refreshed, err := e.fetch(ctx, coll, parentID)
	if err != nil {
		return nil, err
	}
	if refreshed {
		e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindResync, Collection: coll, ParentID: parentID})
	}
	return items, nil
}

// fetch implements FetchAll. refreshed reports whether the cache was
// replaced from the remote.
func (e *Engine) fetch(ctx context.Context, coll schema.Collection, parentID string) (items []schema.Item, refreshed bool, err error) {
	if !coll.IsValid() {
		return nil, false, validationErr(fmt.Errorf("unknown collection %q", coll))
	}

	if !e.oracle.IsOnline() {
		items, err = e.cached(ctx, coll, parentID)
		return items, false, err
	}

	var records []remote.Record
	err = e.bounded(ctx, func(ctx context.Context) error {
		var err error
		records, err = e.remote.List(ctx, coll, parentID)
		return err
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrConnectivity) {
			e.logger.Warn("remote fetch failed, using local cache",
				"collection", coll, "parent", parentID, "error", err)
			items, err = e.cached(ctx, coll, parentID)
			return items, false, err
		}
		cached, cacheErr := e.cached(ctx, coll, parentID)
		if cacheErr != nil {
			e.logger.Error("local cache unreadable", "collection", coll, "error", cacheErr)
		}
		return nil, false, &FetchError{Collection: coll, ParentID: parentID, Cached: cached, Err: err}
	}

	fresh := make([]schema.Item, 0, len(records))
	for _, r := range records {
		fresh = append(fresh, r.ToItem(parentID))
	}
	if err := e.local.ReplaceSynced(ctx, coll, parentID, fresh); err != nil {
		return nil, false, localErr("write-through", err)
	}

	items, err = e.cached(ctx, coll, parentID)
	return items, err == nil, err
}

// Create stores a new record under parentID.
//
// Online, exactly one remote create is attempted and the record is stored
// under the remote id. Offline, or when that attempt fails, the record is
// stored under a locally-minted id as PendingCreate; a failed attempt also
// sets SyncFailed.
func (e *Engine) Create(ctx context.Context, coll schema.Collection, parentID string, fields schema.Fields) (schema.Item, error) {
	if !coll.IsValid() {
		return schema.Item{}, validationErr(fmt.Errorf("unknown collection %q", coll))
	}
	fields.ParentID = parentID
	if err := fields.Validate(); err != nil {
		return schema.Item{}, validationErr(err)
	}
	fields.SetDefaults()
	now := e.config.Now()
	fields.CreatedAt = now
	fields.LastUpdated = nil

	item := schema.Item{Fields: fields}
	online := e.oracle.IsOnline()
	if online && !schema.IsLocalID(parentID) {
		var id string
		err := e.bounded(ctx, func(ctx context.Context) error {
			var err error
			id, err = e.remote.Create(ctx, coll, parentID, fields)
			return err
		})
		if err == nil {
			item.ID = id
			item.State = schema.StateSynced
		} else {
			e.logger.Warn("remote create failed, storing locally",
				"collection", coll, "parent", parentID, "error", classify(err))
			item.SyncFailed = true
		}
	}
	if item.ID == "" {
		item.ID = schema.NewLocalID(now)
		item.State = schema.StatePendingCreate
	}

	if err := e.local.Put(ctx, coll, item); err != nil {
		return schema.Item{}, localErr("create", err)
	}

	e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindUpsert, Collection: coll, ParentID: parentID, ID: item.ID, Item: &item})
	return item, nil
}

// Update stores new domain fields for an existing record.
//
// A tentative notification is published before anything is written. Online
// records with a server id are pushed first; if that fails, or when offline,
// the record is stored with a pending state and SyncFailed so the sweeper
// retries it. Records with a locally-minted id stay PendingCreate and are
// never pushed by Update. A local write failure resyncs observers for the
// parent and is returned.
func (e *Engine) Update(ctx context.Context, coll schema.Collection, item schema.Item) (schema.Item, error) {
	if !coll.IsValid() {
		return schema.Item{}, validationErr(fmt.Errorf("unknown collection %q", coll))
	}
	if item.ID == "" {
		return schema.Item{}, validationErr(errors.New("id is required"))
	}
	if err := item.Fields.Validate(); err != nil {
		return schema.Item{}, validationErr(err)
	}

	existing, found, err := Lookup(ctx, e.local, coll, item.ID)
	if err != nil {
		e.resync(ctx, coll, item.ParentID)
		return schema.Item{}, localErr("update", err)
	}
	if found {
		if existing.ParentID != item.ParentID {
			return schema.Item{}, validationErr(fmt.Errorf("parentId of %s cannot change from %s to %s", item.ID, existing.ParentID, item.ParentID))
		}
		if existing.MarkedForDeletion() {
			return schema.Item{}, validationErr(fmt.Errorf("%s %s is pending deletion", coll, item.ID))
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = existing.CreatedAt
		}
	}
	item.SetDefaults()
	item.MarkedAt = nil

	e.publish(notify.Event{Stage: notify.StageTentative, Kind: notify.KindUpsert, Collection: coll, ParentID: item.ParentID, ID: item.ID, Item: &item})

	online := e.oracle.IsOnline()
	switch {
	case online && schema.IsLocalID(item.ID):
		// The remote has never seen this id; the sweeper creates it.
		item.State = schema.StatePendingCreate
		item.SyncFailed = found && existing.SyncFailed
	case online:
		err := e.bounded(ctx, func(ctx context.Context) error {
			return e.remote.Update(ctx, coll, item.ParentID, item.ID, item.DomainFields())
		})
		if err == nil {
			item.State = schema.StateSynced
			item.SyncFailed = false
			break
		}
		e.logger.Warn("remote update failed, deferring to sync",
			"collection", coll, "id", item.ID, "error", classify(err))
		e.markPendingUpdate(&item)
	default:
		e.markPendingUpdate(&item)
	}

	if err := e.local.Put(ctx, coll, item); err != nil {
		e.resync(ctx, coll, item.ParentID)
		return schema.Item{}, localErr("update", err)
	}

	e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindUpsert, Collection: coll, ParentID: item.ParentID, ID: item.ID, Item: &item})
	return item, nil
}

func (e *Engine) markPendingUpdate(item *schema.Item) {
	now := e.config.Now()
	item.State = schema.PendingStateFor(item.ID)
	item.SyncFailed = true
	item.LastUpdated = &now
}

// Delete removes a record from the active view and returns its id.
//
// A locally-minted record is removed at once. Online, a confirmed remote
// delete (or a remote "not found") removes the record physically. Offline,
// or when the remote delete fails, the record is kept as PendingDelete until
// the sweeper confirms it. Deleting a missing record is a no-op. Deleting a
// list also removes its tasks once the list is gone.
func (e *Engine) Delete(ctx context.Context, coll schema.Collection, parentID, id string) (string, error) {
	if !coll.IsValid() {
		return "", validationErr(fmt.Errorf("unknown collection %q", coll))
	}
	if id == "" {
		return "", validationErr(errors.New("id is required"))
	}

	e.publish(notify.Event{Stage: notify.StageTentative, Kind: notify.KindRemove, Collection: coll, ParentID: parentID, ID: id})

	existing, found, err := Lookup(ctx, e.local, coll, id)
	if err != nil {
		e.resync(ctx, coll, parentID)
		return "", localErr("delete", err)
	}
	if found {
		parentID = existing.ParentID
	}

	if schema.IsLocalID(id) {
		if found {
			if err := e.purge(ctx, coll, id); err != nil {
				e.resync(ctx, coll, parentID)
				return "", localErr("delete", err)
			}
		}
		e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindRemove, Collection: coll, ParentID: parentID, ID: id})
		return id, nil
	}

	online := e.oracle.IsOnline()
	if online {
		err := e.bounded(ctx, func(ctx context.Context) error {
			return e.remote.Delete(ctx, coll, parentID, id)
		})
		if err == nil || remote.IsNotFound(err) {
			if err := e.purge(ctx, coll, id); err != nil {
				e.resync(ctx, coll, parentID)
				return "", localErr("delete", err)
			}
			e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindRemove, Collection: coll, ParentID: parentID, ID: id})
			return id, nil
		}
		e.logger.Warn("remote delete failed, marking for deletion",
			"collection", coll, "id", id, "error", classify(err))
	}

	if !found {
		return id, nil
	}

	if !existing.MarkedForDeletion() || online {
		now := e.config.Now()
		existing.State = schema.StatePendingDelete
		existing.MarkedAt = &now
		existing.SyncFailed = online
		if err := e.local.Put(ctx, coll, existing); err != nil {
			e.resync(ctx, coll, parentID)
			return "", localErr("delete", err)
		}
	}

	e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindRemove, Collection: coll, ParentID: parentID, ID: id, Item: &existing})
	return id, nil
}

// purge physically removes a record, and the tasks of a list.
func (e *Engine) purge(ctx context.Context, coll schema.Collection, id string) error {
	if err := e.local.Delete(ctx, coll, id); err != nil {
		return err
	}
	if coll == schema.CollectionLists {
		return e.local.DeleteChildren(ctx, id)
	}
	return nil
}

// Get returns one active record from the local store.
func (e *Engine) Get(ctx context.Context, coll schema.Collection, id string) (schema.Item, error) {
	it, found, err := Lookup(ctx, e.local, coll, id)
	if err != nil {
		return schema.Item{}, localErr("get", err)
	}
	if !found || it.MarkedForDeletion() {
		return schema.Item{}, fmt.Errorf("%s %s: %w", coll, id, store.ErrNotFound)
	}
	return it, nil
}

// Pending returns every record the sweeper still has to push, lists first.
func (e *Engine) Pending(ctx context.Context) ([]schema.Item, error) {
	var out []schema.Item
	for _, c := range schema.Collections() {
		items, err := e.local.GetAll(ctx, c, store.Filter{PendingOnly: true})
		if err != nil {
			return nil, localErr("pending", err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// Search returns active records of coll whose title or description contains
// keyword, case-insensitively, across every parent.
func (e *Engine) Search(ctx context.Context, coll schema.Collection, keyword string) ([]schema.Item, error) {
	items, err := e.local.GetAll(ctx, coll, store.Filter{ActiveOnly: true, Match: query.MatchKeyword(keyword)})
	if err != nil {
		return nil, localErr("search", err)
	}
	return items, nil
}

func (e *Engine) cached(ctx context.Context, coll schema.Collection, parentID string) ([]schema.Item, error) {
	items, err := e.local.GetAll(ctx, coll, store.Filter{ParentID: parentID, ActiveOnly: true})
	if err != nil {
		return nil, localErr("read cache", err)
	}
	return items, nil
}

// resync reloads the parent's cache after a local failure and tells
// observers to drop optimistic state for it. It can overwrite optimistic
// state of other in-flight operations on the same parent.
func (e *Engine) resync(ctx context.Context, coll schema.Collection, parentID string) {
	if parentID == "" {
		return
	}
	if _, _, err := e.fetch(ctx, coll, parentID); err != nil {
		e.logger.Error("resync failed", "collection", coll, "parent", parentID, "error", err)
	}
	e.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindResync, Collection: coll, ParentID: parentID})
}

// bounded runs fn under the fetch budget. It returns when the budget
// expires even if fn ignores its context.
func (e *Engine) bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	return Bounded(ctx, e.config.FetchTimeout, fn)
}

// Bounded runs fn with a timeout and returns context.DeadlineExceeded when
// it does not finish in time.
func Bounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) publish(ev notify.Event) {
	ev.Timestamp = e.config.Now()
	e.config.Publisher.Publish(ev)
}
