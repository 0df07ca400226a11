package store

import (
	"context"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// The methods below address a table by collection so callers can depend on
// one small interface instead of two tables.

func (db *DB) GetAll(ctx context.Context, c schema.Collection, f Filter) ([]schema.Item, error) {
	return db.Table(c).GetAll(ctx, f)
}

func (db *DB) GetByID(ctx context.Context, c schema.Collection, id string) (schema.Item, error) {
	return db.Table(c).GetByID(ctx, id)
}

func (db *DB) Put(ctx context.Context, c schema.Collection, it schema.Item) error {
	return db.Table(c).Put(ctx, it)
}

func (db *DB) Delete(ctx context.Context, c schema.Collection, id string) error {
	return db.Table(c).Delete(ctx, id)
}

func (db *DB) ReplaceID(ctx context.Context, c schema.Collection, oldID string, it schema.Item) error {
	return db.Table(c).ReplaceID(ctx, oldID, it)
}

func (db *DB) ReplaceSynced(ctx context.Context, c schema.Collection, parentID string, fresh []schema.Item) error {
	return db.Table(c).ReplaceSynced(ctx, parentID, fresh)
}

func (db *DB) Reparent(ctx context.Context, c schema.Collection, oldParent, newParent string) (int, error) {
	return db.Table(c).Reparent(ctx, oldParent, newParent)
}

// DeleteChildren removes every task under a list.
func (db *DB) DeleteChildren(ctx context.Context, listID string) error {
	tasks, err := db.tasks.GetAll(ctx, Filter{ParentID: listID})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := db.tasks.Delete(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Rewrite(ctx context.Context, c schema.Collection, id string, fn RewriteFunc) error {
	return db.Table(c).Rewrite(ctx, id, fn)
}
