// Package migrate moves local store contents in and out of portable files.
//
// Two formats are supported:
//
//	jsonl  one Record per line, lists before tasks
//	yaml   a single Snapshot document
//
// Both carry provenance (sync state, failure flag, deletion mark), so a
// restored store resumes syncing exactly where the exported one stopped.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

// SnapshotVersion is written into YAML snapshots.
const SnapshotVersion = 1

// Format selects the file encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "jsonl", "json", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonl", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want jsonl or yaml)", s)
	}
}

// FormatFromPath picks YAML for .yaml/.yml files and JSONL otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// Record is one line of a JSONL export.
type Record struct {
	Collection  schema.Collection `json:"collection" yaml:"collection"`
	schema.Item `yaml:",inline"`
}

// Snapshot is the YAML export document.
type Snapshot struct {
	Version    int           `yaml:"version"`
	ExportedAt time.Time     `yaml:"exportedAt"`
	Lists      []schema.Item `yaml:"lists"`
	Tasks      []schema.Item `yaml:"tasks"`
}

// Records flattens the snapshot, lists first.
func (s *Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.Lists)+len(s.Tasks))
	for _, it := range s.Lists {
		out = append(out, Record{Collection: schema.CollectionLists, Item: it})
	}
	for _, it := range s.Tasks {
		out = append(out, Record{Collection: schema.CollectionTasks, Item: it})
	}
	return out
}

// Result contains statistics about an export or import
type Result struct {
	Lists         int
	Tasks         int
	Skipped       int
	BackupCreated string
	Errors        []string
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	Replace      bool // Clear both collections before importing
	SkipExisting bool // Keep local records whose id is already present
	DryRun       bool // Validate without writing
	Backup       bool // Export the current store next to it first
}

// Export writes every local record, pending deletions included.
func Export(ctx context.Context, db *store.DB, w io.Writer, format Format) (*Result, error) {
	snap, err := snapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	result := &Result{Lists: len(snap.Lists), Tasks: len(snap.Tasks)}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, rec := range snap.Records() {
			if err := enc.Encode(rec); err != nil {
				return nil, fmt.Errorf("failed to encode %s %s: %w", rec.Collection, rec.ID, err)
			}
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return result, nil
}

// ExportFile writes an export atomically via a temp file.
func ExportFile(ctx context.Context, db *store.DB, path string, format Format) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var buf bytes.Buffer
	result, err := Export(ctx, db, &buf, format)
	if err != nil {
		return nil, err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// Decode reads records in the given format. Blank JSONL lines are skipped.
func Decode(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatYAML:
		var snap Snapshot
		if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid YAML snapshot: %w", err)
		}
		if snap.Version > SnapshotVersion {
			return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion)
		}
		return snap.Records(), nil
	case FormatJSONL:
		var records []Record
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read export: %w", err)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Import upserts decoded records into db. Records that fail validation are
// reported in Result.Errors and skipped; the rest are still written.
func Import(ctx context.Context, db *store.DB, r io.Reader, format Format, opts ImportOptions) (*Result, error) {
	records, err := Decode(r, format)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if opts.Backup && !opts.DryRun {
		backupPath := db.Path() + ".backup." + time.Now().Format("20060102-150405") + ".jsonl"
		if _, err := ExportFile(ctx, db, backupPath, FormatJSONL); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	batches := make(map[schema.Collection][]schema.Item)
	for _, rec := range records {
		if err := checkRecord(rec); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if opts.SkipExisting && !opts.Replace {
			_, err := db.GetByID(ctx, rec.Collection, rec.ID)
			if err == nil {
				result.Skipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		batches[rec.Collection] = append(batches[rec.Collection], rec.Item)
	}
	result.Lists = len(batches[schema.CollectionLists])
	result.Tasks = len(batches[schema.CollectionTasks])

	if opts.DryRun {
		return result, nil
	}

	if opts.Replace {
		for _, c := range schema.Collections() {
			if err := db.Table(c).Clear(ctx); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", c, err)
			}
		}
	}
	for _, c := range schema.Collections() {
		if items := batches[c]; len(items) > 0 {
			if err := db.Table(c).BulkPut(ctx, items); err != nil {
				return nil, fmt.Errorf("failed to import %s: %w", c, err)
			}
		}
	}
	return result, nil
}

// ImportFile imports from path, choosing the format by extension.
func ImportFile(ctx context.Context, db *store.DB, path string, opts ImportOptions) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	return Import(ctx, db, file, FormatFromPath(path), opts)
}

func snapshot(ctx context.Context, db *store.DB) (*Snapshot, error) {
	lists, err := db.Lists().GetAll(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read lists: %w", err)
	}
	tasks, err := db.Tasks().GetAll(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	return &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC(),
		Lists:      lists,
		Tasks:      tasks,
	}, nil
}

func checkRecord(rec Record) error {
	if !rec.Collection.IsValid() {
		return fmt.Errorf("record %s: unknown collection %q", rec.ID, rec.Collection)
	}
	if rec.ID == "" {
		return fmt.Errorf("%s record without id", rec.Collection)
	}
	if err := rec.Item.CheckProvenance(); err != nil {
		return fmt.Errorf("%s %s: %w", rec.Collection, rec.ID, err)
	}
	if err := rec.Fields.Validate(); err != nil {
		return fmt.Errorf("%s %s: %w", rec.Collection, rec.ID, err)
	}
	return nil
}
