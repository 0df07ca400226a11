package sweeper

import (
	"context"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// Result counts the outcome of one sweep.
type Result struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Sweeper replays pending local changes against the remote store.
//
// Sweeps are serialized: a second call waits for the running one. Records
// are re-read one by one, so a record changed by a concurrent engine call
// before its push is pushed in its current form, and a record that
// converged meanwhile is skipped without being counted. A change that lands
// while the push is in flight is never overwritten: the record stays pending
// (re-keyed to the remote id after a create) and the next sweep pushes it.
// An update the remote answers with "not found" means the record was
// deleted elsewhere; the local copy is dropped.
type Sweeper interface {
	// Sync pushes every pending record.
	//
	// Returns a zero Result without touching any store when offline.
	// Per-record failures are counted in Result.Failed and never abort the
	// sweep; an error is returned only when the pending set cannot be read
	// or ctx is cancelled.
	//
	// Running Sync on a converged store makes no remote call and returns
	// a zero Result.
	//
	// Example:
	//   res, err := sw.Sync(ctx)
	Sync(ctx context.Context) (Result, error)

	// SyncRecord pushes one record. It reports whether there was anything
	// to push.
	//
	// Example:
	//   pushed, err := sw.SyncRecord(ctx, schema.CollectionTasks, "offline_1718000000000_1a2b3c4d5")
	SyncRecord(ctx context.Context, coll schema.Collection, id string) (bool, error)
}
