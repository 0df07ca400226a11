package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/engine"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

var (
	// ErrOffline is returned by SyncRecord when the oracle reports offline.
	ErrOffline = errors.New("offline")

	// ErrParentNotSynced is recorded for a task whose list has not reached
	// the remote store yet.
	ErrParentNotSynced = errors.New("parent list not synced yet")
)

// Config holds sweeper configuration.
type Config struct {
	// Timeout bounds each remote call (default: engine.DefaultFetchTimeout)
	Timeout time.Duration

	// Publisher receives per-record and per-sweep notifications (default: discard)
	Publisher notify.Publisher

	// Logger for sweep activity (default: slog.Default())
	Logger *slog.Logger

	// Now is the clock (default: time.Now)
	Now func() time.Time
}

// sweeper implements the Sweeper interface.
type sweeper struct {
	local  engine.LocalStore
	remote remote.Client
	oracle connectivity.Oracle
	config Config
	logger *slog.Logger

	mu sync.Mutex // serializes sweeps
}

// New creates a new Sweeper.
//
// The sweeper shares the local store, remote client and oracle with the
// engine. If config fields are zero, defaults are used.
//
// Example:
//
//	eng := engine.New(db, client, oracle, engine.Config{Publisher: hub})
//	sw := sweeper.New(db, client, oracle, sweeper.Config{Publisher: hub})
//	res, err := sw.Sync(ctx)
func New(local engine.LocalStore, rc remote.Client, oracle connectivity.Oracle, config Config) Sweeper {
	if config.Timeout <= 0 {
		config.Timeout = engine.DefaultFetchTimeout
	}
	if config.Publisher == nil {
		config.Publisher = notify.Discard
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &sweeper{
		local:  local,
		remote: rc,
		oracle: oracle,
		config: config,
		logger: config.Logger.With("component", "sweeper"),
	}
}

// Sync implements Sweeper.Sync.
func (s *sweeper) Sync(ctx context.Context) (Result, error) {
	var res Result
	if !s.oracle.IsOnline() {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.config.Now()
	for _, coll := range schema.Collections() {
		pending, err := s.local.GetAll(ctx, coll, store.Filter{PendingOnly: true})
		if err != nil {
			return res, fmt.Errorf("%w: failed to read pending %s: %w", engine.ErrLocalPersistence, coll, err)
		}

		for _, it := range pending {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			pushed, err := s.syncRecord(ctx, coll, it.ID)
			switch {
			case err != nil:
				s.logger.Warn("sync failed", "collection", coll, "id", it.ID, "error", err)
				res.Failed++
			case pushed:
				res.Synced++
			}
		}
	}

	if res.Synced > 0 || res.Failed > 0 {
		s.logger.Info("sweep complete",
			"synced", res.Synced, "failed", res.Failed, "duration", s.config.Now().Sub(start))
	}
	s.publish(notify.Event{
		Stage:  notify.StageCommitted,
		Kind:   notify.KindSync,
		Result: &notify.SyncResult{Synced: res.Synced, Failed: res.Failed},
	})
	return res, nil
}

// SyncRecord implements Sweeper.SyncRecord.
func (s *sweeper) SyncRecord(ctx context.Context, coll schema.Collection, id string) (bool, error) {
	if !s.oracle.IsOnline() {
		return false, ErrOffline
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncRecord(ctx, coll, id)
}

// syncRecord resolves one record from its current stored state.
func (s *sweeper) syncRecord(ctx context.Context, coll schema.Collection, id string) (bool, error) {
	it, found, err := engine.Lookup(ctx, s.local, coll, id)
	if err != nil {
		return false, fmt.Errorf("%w: %w", engine.ErrLocalPersistence, err)
	}
	if !found || !it.NeedsSync() {
		return false, nil
	}
	if err := it.CheckProvenance(); err != nil {
		return false, s.fail(ctx, coll, it, err)
	}

	switch it.State {
	case schema.StatePendingDelete:
		return true, s.pushDelete(ctx, coll, it)
	case schema.StatePendingCreate:
		return true, s.pushCreate(ctx, coll, it)
	default:
		// PendingUpdate, or Synced with a failed remote write.
		return true, s.pushUpdate(ctx, coll, it)
	}
}

func (s *sweeper) pushDelete(ctx context.Context, coll schema.Collection, it schema.Item) error {
	err := s.bounded(ctx, func(ctx context.Context) error {
		return s.remote.Delete(ctx, coll, it.ParentID, it.ID)
	})
	if err != nil && !remote.IsNotFound(err) {
		return s.fail(ctx, coll, it, err)
	}
	return s.purge(ctx, coll, it)
}

// purge removes a record the remote no longer holds, unless it changed
// locally since it was read.
func (s *sweeper) purge(ctx context.Context, coll schema.Collection, it schema.Item) error {
	var removed bool
	err := s.local.Rewrite(ctx, coll, it.ID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		removed = found && cur.Same(it)
		return nil, removed
	})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrLocalPersistence, err)
	}
	if !removed {
		s.logger.Debug("record changed during sync, left pending", "collection", coll, "id", it.ID)
		return nil
	}
	if coll == schema.CollectionLists {
		if err := s.local.DeleteChildren(ctx, it.ID); err != nil {
			return fmt.Errorf("%w: %w", engine.ErrLocalPersistence, err)
		}
	}

	s.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindRemove, Collection: coll, ParentID: it.ParentID, ID: it.ID})
	return nil
}

func (s *sweeper) pushUpdate(ctx context.Context, coll schema.Collection, it schema.Item) error {
	err := s.bounded(ctx, func(ctx context.Context) error {
		return s.remote.Update(ctx, coll, it.ParentID, it.ID, it.DomainFields())
	})
	if remote.IsNotFound(err) {
		// Deleted on another device: the remote delete wins.
		s.logger.Info("record deleted remotely, dropping local copy", "collection", coll, "id", it.ID)
		return s.purge(ctx, coll, it)
	}
	if err != nil {
		return s.fail(ctx, coll, it, err)
	}

	var stored *schema.Item
	err = s.local.Rewrite(ctx, coll, it.ID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		if !found || !cur.Same(it) {
			return nil, false
		}
		next := cur.Clone()
		next.State = schema.StateSynced
		next.SyncFailed = false
		stored = &next
		return stored, true
	})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrLocalPersistence, err)
	}
	if stored == nil {
		s.logger.Debug("record changed during sync, left pending", "collection", coll, "id", it.ID)
		return nil
	}

	s.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindUpsert, Collection: coll, ParentID: stored.ParentID, ID: stored.ID, Item: stored})
	return nil
}

func (s *sweeper) pushCreate(ctx context.Context, coll schema.Collection, it schema.Item) error {
	if coll == schema.CollectionTasks && schema.IsLocalID(it.ParentID) {
		return s.fail(ctx, coll, it, fmt.Errorf("%w: %s", ErrParentNotSynced, it.ParentID))
	}

	var id string
	err := s.bounded(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.remote.Create(ctx, coll, it.ParentID, it.DomainFields())
		return err
	})
	if err != nil {
		return s.fail(ctx, coll, it, err)
	}

	// The record is re-keyed to the remote id whatever happened to it
	// meanwhile. An unchanged record becomes Synced, an edited one keeps its
	// edit as a pending update, and a deleted one leaves a pending delete so
	// the remote copy goes too.
	localID := it.ID
	var stored schema.Item
	err = s.local.Rewrite(ctx, coll, localID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		if !found {
			now := s.config.Now()
			stored = it.Clone()
			stored.ID = id
			stored.State = schema.StatePendingDelete
			stored.SyncFailed = false
			stored.MarkedAt = &now
			return &stored, true
		}
		stored = cur.Clone()
		stored.ID = id
		switch {
		case cur.Same(it):
			stored.State = schema.StateSynced
			stored.SyncFailed = false
		case cur.State == schema.StatePendingCreate:
			stored.State = schema.StatePendingUpdate
		}
		return &stored, true
	})
	if err != nil {
		// The remote now holds a copy the local store does not know about.
		s.logger.Error("remote create succeeded but local re-key failed",
			"collection", coll, "local_id", localID, "remote_id", id, "error", err)
		return fmt.Errorf("%w: %w", engine.ErrLocalPersistence, err)
	}

	if stored.MarkedForDeletion() {
		s.logger.Debug("record deleted during sync, removing remote copy", "collection", coll, "local_id", localID, "remote_id", id)
		return s.pushDelete(ctx, coll, stored)
	}

	if coll == schema.CollectionLists {
		moved, err := s.local.Reparent(ctx, schema.CollectionTasks, localID, id)
		if err != nil {
			return fmt.Errorf("%w: failed to move tasks to %s: %w", engine.ErrLocalPersistence, id, err)
		}
		if moved > 0 {
			s.logger.Debug("moved tasks to synced list", "from", localID, "to", id, "count", moved)
		}
	}

	s.publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindUpsert, Collection: coll, ParentID: stored.ParentID, ID: id, PreviousID: localID, Item: &stored})
	return nil
}

// fail flags the record syncFailed, unless it changed since it was read, and
// returns cause.
func (s *sweeper) fail(ctx context.Context, coll schema.Collection, it schema.Item, cause error) error {
	err := s.local.Rewrite(ctx, coll, it.ID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		if !found || cur.SyncFailed || !cur.Same(it) {
			return nil, false
		}
		next := cur.Clone()
		next.SyncFailed = true
		return &next, true
	})
	if err != nil {
		s.logger.Error("failed to flag record", "collection", coll, "id", it.ID, "error", err)
	}
	return cause
}

func (s *sweeper) bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	return engine.Bounded(ctx, s.config.Timeout, fn)
}

func (s *sweeper) publish(ev notify.Event) {
	ev.Timestamp = s.config.Now()
	s.config.Publisher.Publish(ev)
}
