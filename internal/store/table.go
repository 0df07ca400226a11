package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// Table is one collection in the store.
type Table struct {
	db   *DB
	coll schema.Collection
}

// Collection returns the collection the table holds.
func (t *Table) Collection() schema.Collection {
	return t.coll
}

// Filter restricts GetAll and Count.
type Filter struct {
	// ParentID keeps records with this parent (empty = all parents)
	ParentID string
	// ActiveOnly drops records pending deletion
	ActiveOnly bool
	// PendingOnly keeps records the sweeper has work for
	PendingOnly bool
	// Match is an arbitrary predicate applied after the SQL filters
	Match func(schema.Item) bool
}

const itemColumns = `id, parent_id, title, description, status, priority,
	due_date, tags, created_at, last_updated,
	sync_state, sync_failed, marked_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetAll returns records matching the filter ordered by created_at, then id.
func (t *Table) GetAll(ctx context.Context, f Filter) ([]schema.Item, error) {
	var conditions []string
	var args []any

	if f.ParentID != "" {
		conditions = append(conditions, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.ActiveOnly {
		conditions = append(conditions, "sync_state != ?")
		args = append(args, string(schema.StatePendingDelete))
	}
	if f.PendingOnly {
		conditions = append(conditions, "(sync_state != ? OR sync_failed = 1)")
		args = append(args, string(schema.StateSynced))
	}

	query := "SELECT " + itemColumns + " FROM " + string(t.coll)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := t.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.coll, err)
	}
	defer rows.Close()

	items := []schema.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if f.Match != nil && !f.Match(it) {
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", t.coll, err)
	}
	return items, nil
}

// Count returns how many records match the filter.
func (t *Table) Count(ctx context.Context, f Filter) (int, error) {
	items, err := t.GetAll(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// GetByID returns the record with the id, or ErrNotFound.
func (t *Table) GetByID(ctx context.Context, id string) (schema.Item, error) {
	row := t.db.conn.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM "+string(t.coll)+" WHERE id = ?", id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Item{}, fmt.Errorf("%s %s: %w", t.coll, id, ErrNotFound)
	}
	return it, err
}

// Put inserts or replaces the record.
func (t *Table) Put(ctx context.Context, it schema.Item) error {
	return t.put(ctx, t.db.conn, it)
}

// BulkPut upserts all records in one transaction.
func (t *Table) BulkPut(ctx context.Context, items []schema.Item) error {
	return t.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if err := t.put(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the record physically. Deleting a missing id is not an error.
func (t *Table) Delete(ctx context.Context, id string) error {
	if _, err := t.db.conn.ExecContext(ctx, "DELETE FROM "+string(t.coll)+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", t.coll, id, err)
	}
	return nil
}

// Clear removes every record in the collection.
func (t *Table) Clear(ctx context.Context) error {
	if _, err := t.db.conn.ExecContext(ctx, "DELETE FROM "+string(t.coll)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", t.coll, err)
	}
	return nil
}

// ReplaceID swaps a record's id in one transaction: the old row is removed
// and it is stored under its new id. Both ids never coexist.
func (t *Table) ReplaceID(ctx context.Context, oldID string, it schema.Item) error {
	return t.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(t.coll)+" WHERE id = ?", oldID); err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", t.coll, oldID, err)
		}
		return t.put(ctx, tx, it)
	})
}

// RewriteFunc decides what replaces a record. cur is the stored record and
// found is false when none has the id. Returning change=false leaves the
// table untouched; next=nil with change=true deletes the record; otherwise
// next is stored and, when its id differs, the old row is removed.
type RewriteFunc func(cur schema.Item, found bool) (next *schema.Item, change bool)

// Rewrite reads the record with the id and applies fn to it in one
// transaction, so no other write lands between the read and the write.
func (t *Table) Rewrite(ctx context.Context, id string, fn RewriteFunc) error {
	return t.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+itemColumns+" FROM "+string(t.coll)+" WHERE id = ?", id)
		cur, err := scanItem(row)
		found := true
		if errors.Is(err, sql.ErrNoRows) {
			cur, found = schema.Item{}, false
		} else if err != nil {
			return err
		}

		next, change := fn(cur, found)
		if !change {
			return nil
		}
		if found && (next == nil || next.ID != id) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(t.coll)+" WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", t.coll, id, err)
			}
		}
		if next == nil {
			return nil
		}
		return t.put(ctx, tx, *next)
	})
}

// Reparent moves every record under oldParent to newParent and returns how
// many moved.
func (t *Table) Reparent(ctx context.Context, oldParent, newParent string) (int, error) {
	res, err := t.db.conn.ExecContext(ctx,
		"UPDATE "+string(t.coll)+" SET parent_id = ? WHERE parent_id = ?", newParent, oldParent)
	if err != nil {
		return 0, fmt.Errorf("failed to reparent %s: %w", t.coll, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReplaceSynced makes the cache for one parent mirror a fresh remote set.
//
// Synced local records absent from fresh are removed and every fresh record
// is stored as Synced, except where the local copy still has work for the
// sweeper: that copy is kept as is.
func (t *Table) ReplaceSynced(ctx context.Context, parentID string, fresh []schema.Item) error {
	return t.db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id, sync_state, sync_failed FROM "+string(t.coll)+" WHERE parent_id = ?", parentID)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", t.coll, err)
		}
		pending := make(map[string]bool)
		var stale []string
		freshIDs := make(map[string]bool, len(fresh))
		for _, it := range fresh {
			freshIDs[it.ID] = true
		}
		for rows.Next() {
			var id string
			var state schema.SyncState
			var failed bool
			if err := rows.Scan(&id, &state, &failed); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan %s: %w", t.coll, err)
			}
			switch {
			case state != schema.StateSynced || failed:
				pending[id] = true
			case !freshIDs[id]:
				stale = append(stale, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(t.coll)+" WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", t.coll, id, err)
			}
		}
		for _, it := range fresh {
			if pending[it.ID] {
				continue
			}
			it.ParentID = parentID
			it.State = schema.StateSynced
			it.SyncFailed = false
			it.MarkedAt = nil
			if err := t.put(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Table) put(ctx context.Context, ex execer, it schema.Item) error {
	if it.ID == "" {
		return fmt.Errorf("failed to put %s: id is required", t.coll)
	}
	if it.State == "" {
		it.State = schema.StateSynced
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	tagsJSON, err := json.Marshal(it.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO ` + string(t.coll) + ` (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		parent_id = excluded.parent_id,
		title = excluded.title,
		description = excluded.description,
		status = excluded.status,
		priority = excluded.priority,
		due_date = excluded.due_date,
		tags = excluded.tags,
		created_at = excluded.created_at,
		last_updated = excluded.last_updated,
		sync_state = excluded.sync_state,
		sync_failed = excluded.sync_failed,
		marked_at = excluded.marked_at
	`
	_, err = ex.ExecContext(ctx, query,
		it.ID,
		it.ParentID,
		it.Title,
		it.Description,
		string(it.Status),
		string(it.Priority),
		stringToNull(it.DueDate),
		string(tagsJSON),
		formatTime(it.CreatedAt),
		timeToNullString(it.LastUpdated),
		string(it.State),
		it.SyncFailed,
		timeToNullString(it.MarkedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put %s %s: %w", t.coll, it.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (schema.Item, error) {
	var it schema.Item
	var tagsJSON, createdAt string
	var dueDate, lastUpdated, markedAt sql.NullString

	err := s.Scan(
		&it.ID,
		&it.ParentID,
		&it.Title,
		&it.Description,
		&it.Status,
		&it.Priority,
		&dueDate,
		&tagsJSON,
		&createdAt,
		&lastUpdated,
		&it.State,
		&it.SyncFailed,
		&markedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return it, err
	}
	if err != nil {
		return it, fmt.Errorf("failed to scan item: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		it.CreatedAt = t
	}
	it.DueDate = dueDate.String
	it.LastUpdated = nullStringToTime(lastUpdated)
	it.MarkedAt = nullStringToTime(markedAt)

	it.Tags = []string{}
	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &it.Tags); err != nil {
			return it, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return it, nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
