// Package remote defines the client for the authoritative remote store.
//
// The remote is a key space partitioned by collection and parent id. Each
// call is a single attempt; retries belong to the sweeper. Implementations
// live in sub-packages: sqlremote (PostgreSQL or libSQL) and googletasks.
package remote

import (
	"context"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// Record is one remote document: a server-assigned id and the domain fields.
type Record struct {
	ID string
	schema.Fields
}

// Client is CRUD over the remote key space.
type Client interface {
	// List returns every record under parentID.
	List(ctx context.Context, coll schema.Collection, parentID string) ([]Record, error)
	// Create stores fields under parentID and returns the server-assigned id.
	Create(ctx context.Context, coll schema.Collection, parentID string, fields schema.Fields) (string, error)
	// Update replaces the fields of an existing record.
	Update(ctx context.Context, coll schema.Collection, parentID, id string, fields schema.Fields) error
	// Delete removes a record. A missing record yields ErrNotFound.
	Delete(ctx context.Context, coll schema.Collection, parentID, id string) error
}

// ToItem converts a remote record into a synced local item.
func (r Record) ToItem(parentID string) schema.Item {
	it := schema.Item{ID: r.ID, Fields: r.Fields, State: schema.StateSynced}
	it.ParentID = parentID
	it.SetDefaults()
	return it
}
