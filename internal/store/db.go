// Package store is the durable on-device cache of lists and tasks.
//
// Records live in an embedded SQLite database (ncruces/go-sqlite3, WAL mode)
// with one table per collection. Every record carries its provenance so the
// store alone is enough to tell which local writes the remote has not seen.
//
// Layout:
//   - Database file: ~/.tsync/tsync.db (configurable)
//   - Tables: lists, tasks (identical columns)
//   - Indexes: parent_id, sync_state
//
// Single-record writes are atomic and durable before they return. The
// write-through helper ReplaceSynced runs in one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// ErrNotFound is returned by GetByID when no record has the id.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection holding both collections.
type DB struct {
	conn  *sql.DB
	path  string
	lists *Table
	tasks *Table
}

// Open creates or opens the store at path and ensures the schema exists.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open(filepath.Join(home, ".tsync", "tsync.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}
	db.lists = &Table{db: db, coll: schema.CollectionLists}
	db.tasks = &Table{db: db, coll: schema.CollectionTasks}

	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchemaContext creates both collection tables. Safe to call repeatedly.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	for _, c := range schema.Collections() {
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			priority TEXT NOT NULL DEFAULT 'medium',
			due_date TEXT,
			tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
			created_at TEXT NOT NULL,
			last_updated TEXT,

			-- Provenance
			sync_state TEXT NOT NULL DEFAULT 'synced',
			sync_failed INTEGER NOT NULL DEFAULT 0,
			marked_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_parent ON %[1]s(parent_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_sync ON %[1]s(sync_state, sync_failed);
		`, c)

		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to initialize schema for %s: %w", c, err)
		}
	}
	return nil
}

// Table returns the table for a collection. It panics on an unknown
// collection, which is a programming error.
func (db *DB) Table(c schema.Collection) *Table {
	switch c {
	case schema.CollectionLists:
		return db.lists
	case schema.CollectionTasks:
		return db.tasks
	}
	panic(fmt.Sprintf("store: unknown collection %q", c))
}

// Lists returns the lists table.
func (db *DB) Lists() *Table { return db.lists }

// Tasks returns the tasks table.
func (db *DB) Tasks() *Table { return db.tasks }

// Stats summarizes the store for status output.
type Stats struct {
	Lists   int
	Tasks   int
	Pending int
}

// StatsContext counts records across both collections. Pending counts every
// record the sweeper would visit.
func (db *DB) StatsContext(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Lists, err = db.lists.Count(ctx, Filter{ActiveOnly: true}); err != nil {
		return s, err
	}
	if s.Tasks, err = db.tasks.Count(ctx, Filter{ActiveOnly: true}); err != nil {
		return s, err
	}
	for _, t := range []*Table{db.lists, db.tasks} {
		n, err := t.Count(ctx, Filter{PendingOnly: true})
		if err != nil {
			return s, err
		}
		s.Pending += n
	}
	return s, nil
}
