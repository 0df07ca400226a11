package sqlremote

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/go-libsql"
)

// Dialect captures the SQL differences between supported servers.
type Dialect struct {
	// Name is the config value selecting the dialect.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// DDL creates the remote_items table.
	DDL string
	// numbered placeholders ($1) instead of ?
	numbered bool
}

var (
	// Postgres stores records in PostgreSQL via lib/pq.
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "postgres",
		numbered: true,
		DDL: `
		CREATE TABLE IF NOT EXISTS remote_items (
			id TEXT PRIMARY KEY DEFAULT md5(random()::text || clock_timestamp()::text),
			collection TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_remote_items_parent ON remote_items(collection, parent_id);
		`,
	}

	// LibSQL stores records in a libSQL/Turso server via go-libsql.
	LibSQL = Dialect{
		Name:   "libsql",
		Driver: "libsql",
		DDL: `
		CREATE TABLE IF NOT EXISTS remote_items (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(10)))),
			collection TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_remote_items_parent ON remote_items(collection, parent_id);
		`,
	}
)

// DialectByName returns the dialect for a config value.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "libsql", "turso", "sqlite":
		return LibSQL, nil
	}
	return Dialect{}, fmt.Errorf("unknown remote dialect %q (want postgres or libsql)", name)
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// statements returns the DDL split into single statements. Some drivers
// reject multi-statement Exec.
func (d Dialect) statements() []string {
	var out []string
	for _, s := range strings.Split(d.DDL, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
