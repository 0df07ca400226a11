package engine

import (
	"context"
	"errors"

	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

// LocalStore is the subset of *store.DB the engine and the sweeper use.
type LocalStore interface {
	GetAll(ctx context.Context, c schema.Collection, f store.Filter) ([]schema.Item, error)
	GetByID(ctx context.Context, c schema.Collection, id string) (schema.Item, error)
	Put(ctx context.Context, c schema.Collection, it schema.Item) error
	Delete(ctx context.Context, c schema.Collection, id string) error
	ReplaceID(ctx context.Context, c schema.Collection, oldID string, it schema.Item) error
	ReplaceSynced(ctx context.Context, c schema.Collection, parentID string, fresh []schema.Item) error
	Reparent(ctx context.Context, c schema.Collection, oldParent, newParent string) (int, error)
	DeleteChildren(ctx context.Context, listID string) error
	Rewrite(ctx context.Context, c schema.Collection, id string, fn store.RewriteFunc) error
}

var _ LocalStore = (*store.DB)(nil)

// Lookup returns the record, or ok=false when it does not exist.
func Lookup(ctx context.Context, s LocalStore, c schema.Collection, id string) (schema.Item, bool, error) {
	it, err := s.GetByID(ctx, c, id)
	if errors.Is(err, store.ErrNotFound) {
		return schema.Item{}, false, nil
	}
	if err != nil {
		return schema.Item{}, false, err
	}
	return it, true, nil
}
