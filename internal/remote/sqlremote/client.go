// Package sqlremote implements remote.Client over a SQL database shared by
// every device: PostgreSQL (lib/pq) or a libSQL/Turso server (go-libsql).
//
// All records live in one remote_items table keyed by a server-assigned id
// and partitioned by (collection, parent_id). Domain fields are stored as a
// JSON document so both dialects share one schema.
package sqlremote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
)

// Client is a remote.Client backed by database/sql.
type Client struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to dsn with the given dialect and ensures the table exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Client, error) {
	conn, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := New(conn, dialect)
	if err := c.InitSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an existing connection. The caller owns the schema.
func New(conn *sql.DB, dialect Dialect) *Client {
	return &Client{conn: conn, dialect: dialect}
}

// InitSchema creates the remote_items table if needed.
func (c *Client) InitSchema(ctx context.Context) error {
	for _, stmt := range c.dialect.statements() {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
			return c.wrap(fmt.Errorf("failed to initialize remote schema: %w", err))
		}
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// List implements remote.Client.
func (c *Client) List(ctx context.Context, coll schema.Collection, parentID string) ([]remote.Record, error) {
	query := c.dialect.rebind(`
		SELECT id, data FROM remote_items
		WHERE collection = ? AND parent_id = ?
		ORDER BY created_at ASC, id ASC`)

	rows, err := c.conn.QueryContext(ctx, query, string(coll), parentID)
	if err != nil {
		return nil, c.wrap(fmt.Errorf("failed to list %s: %w", coll, err))
	}
	defer rows.Close()

	records := []remote.Record{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, c.wrap(fmt.Errorf("failed to scan %s: %w", coll, err))
		}
		rec := remote.Record{ID: id}
		if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", coll, id, err)
		}
		rec.ParentID = parentID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrap(fmt.Errorf("failed to iterate %s: %w", coll, err))
	}
	return records, nil
}

// Create implements remote.Client. The id comes from the server.
func (c *Client) Create(ctx context.Context, coll schema.Collection, parentID string, fields schema.Fields) (string, error) {
	data, err := encode(parentID, fields)
	if err != nil {
		return "", err
	}

	query := c.dialect.rebind(`
		INSERT INTO remote_items (collection, parent_id, data)
		VALUES (?, ?, ?)
		RETURNING id`)

	var id string
	if err := c.conn.QueryRowContext(ctx, query, string(coll), parentID, data).Scan(&id); err != nil {
		return "", c.wrap(fmt.Errorf("failed to create %s: %w", coll, err))
	}
	return id, nil
}

// Update implements remote.Client.
func (c *Client) Update(ctx context.Context, coll schema.Collection, parentID, id string, fields schema.Fields) error {
	data, err := encode(parentID, fields)
	if err != nil {
		return err
	}

	query := c.dialect.rebind(`
		UPDATE remote_items SET data = ?, updated_at = CURRENT_TIMESTAMP
		WHERE collection = ? AND id = ?`)

	result, err := c.conn.ExecContext(ctx, query, data, string(coll), id)
	if err != nil {
		return c.wrap(fmt.Errorf("failed to update %s %s: %w", coll, id, err))
	}
	return affected(result, coll, id)
}

// Delete implements remote.Client.
func (c *Client) Delete(ctx context.Context, coll schema.Collection, parentID, id string) error {
	query := c.dialect.rebind(`DELETE FROM remote_items WHERE collection = ? AND id = ?`)

	result, err := c.conn.ExecContext(ctx, query, string(coll), id)
	if err != nil {
		return c.wrap(fmt.Errorf("failed to delete %s %s: %w", coll, id, err))
	}
	if err := affected(result, coll, id); err != nil {
		return err
	}

	if coll == schema.CollectionLists {
		// Tasks of a deleted list go with it.
		query = c.dialect.rebind(`DELETE FROM remote_items WHERE collection = ? AND parent_id = ?`)
		if _, err := c.conn.ExecContext(ctx, query, string(schema.CollectionTasks), id); err != nil {
			return c.wrap(fmt.Errorf("failed to delete tasks of list %s: %w", id, err))
		}
	}
	return nil
}

func affected(result sql.Result, coll schema.Collection, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", coll, id, remote.ErrNotFound)
	}
	return nil
}

func encode(parentID string, fields schema.Fields) (string, error) {
	fields.ParentID = parentID
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(data), nil
}

// wrap tags transport failures with remote.ErrUnavailable so callers can
// fall back to the local store.
func (c *Client) wrap(err error) error {
	if err == nil || errors.Is(err, remote.ErrUnavailable) {
		return err
	}
	if remote.IsConnectivity(err) {
		return fmt.Errorf("%w: %w", remote.ErrUnavailable, err)
	}
	return err
}

var _ remote.Client = (*Client)(nil)
