package migrate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/store"
)

func openStore(t *testing.T, name string) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func item(id, parent, title string, state schema.SyncState, created time.Time) schema.Item {
	f := schema.Fields{ParentID: parent, Title: title, CreatedAt: created}
	f.SetDefaults()
	return schema.Item{ID: id, Fields: f, State: state}
}

// seedStore fills db with a mix of synced and pending records.
func seedStore(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	marked := base.Add(time.Hour)

	deleted := item("srv-t3", "srv-l1", "old chore", schema.StatePendingDelete, base.Add(3*time.Minute))
	deleted.MarkedAt = &marked
	failed := item("srv-t2", "srv-l1", "call plumber", schema.StateSynced, base.Add(2*time.Minute))
	failed.SyncFailed = true
	failed.Tags = []string{"home", "urgent"}
	failed.DueDate = "2026-03-05"

	puts := []struct {
		coll schema.Collection
		it   schema.Item
	}{
		{schema.CollectionLists, item("srv-l1", "user-1", "Home", schema.StateSynced, base)},
		{schema.CollectionLists, item("offline_1_aaaaaaaaa", "user-1", "Trip", schema.StatePendingCreate, base.Add(time.Minute))},
		{schema.CollectionTasks, item("srv-t1", "srv-l1", "buy milk", schema.StatePendingUpdate, base.Add(time.Minute))},
		{schema.CollectionTasks, failed},
		{schema.CollectionTasks, deleted},
		{schema.CollectionTasks, item("offline_2_bbbbbbbbb", "offline_1_aaaaaaaaa", "pack bags", schema.StatePendingCreate, base.Add(4*time.Minute))},
	}
	for _, p := range puts {
		if err := db.Put(ctx, p.coll, p.it); err != nil {
			t.Fatalf("Put(%s) failed: %v", p.it.ID, err)
		}
	}
}

func dump(t *testing.T, db *store.DB) map[schema.Collection][]schema.Item {
	t.Helper()
	out := make(map[schema.Collection][]schema.Item)
	for _, c := range schema.Collections() {
		items, err := db.GetAll(context.Background(), c, store.Filter{})
		if err != nil {
			t.Fatalf("GetAll(%s) failed: %v", c, err)
		}
		out[c] = items
	}
	return out
}

func TestExportImport_RestoresProvenance(t *testing.T) {
	for _, format := range []Format{FormatJSONL, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := openStore(t, "src.db")
			seedStore(t, src)

			var buf bytes.Buffer
			res, err := Export(ctx, src, &buf, format)
			if err != nil {
				t.Fatalf("Export() failed: %v", err)
			}
			if res.Lists != 2 || res.Tasks != 4 {
				t.Errorf("Export() = %+v, want 2 lists and 4 tasks", res)
			}

			dst := openStore(t, "dst.db")
			res, err = Import(ctx, dst, &buf, format, ImportOptions{})
			if err != nil {
				t.Fatalf("Import() failed: %v", err)
			}
			if res.Lists != 2 || res.Tasks != 4 || len(res.Errors) != 0 {
				t.Errorf("Import() = %+v", res)
			}

			if diff := cmp.Diff(dump(t, src), dump(t, dst), cmpopts.EquateApproxTime(0)); diff != "" {
				t.Errorf("restored store differs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExport_JSONLListsFirst(t *testing.T) {
	db := openStore(t, "tsync.db")
	seedStore(t, db)

	var buf bytes.Buffer
	if _, err := Export(context.Background(), db, &buf, FormatJSONL); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	records, err := Decode(&buf, FormatJSONL)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("got %d records, want 6", len(records))
	}
	if records[0].Collection != schema.CollectionLists || records[1].Collection != schema.CollectionLists {
		t.Errorf("lists not first: %s, %s", records[0].Collection, records[1].Collection)
	}
	if records[4].ID != "srv-t3" || records[4].MarkedAt == nil {
		t.Errorf("pending deletion lost its mark: %+v", records[4])
	}
}

func TestImport_Options(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "src.db")
	seedStore(t, src)
	var export bytes.Buffer
	if _, err := Export(ctx, src, &export, FormatJSONL); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	tests := []struct {
		name      string
		opts      ImportOptions
		wantTasks int
		wantSkip  int
		wantTitle string
	}{
		{name: "upsert overwrites", opts: ImportOptions{}, wantTasks: 5, wantTitle: "buy milk"},
		{name: "skip existing", opts: ImportOptions{SkipExisting: true}, wantTasks: 5, wantSkip: 1, wantTitle: "local edit"},
		{name: "replace", opts: ImportOptions{Replace: true}, wantTasks: 4, wantTitle: "buy milk"},
		{name: "dry run", opts: ImportOptions{DryRun: true}, wantTasks: 2, wantTitle: "local edit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := openStore(t, "dst.db")
			local := item("srv-t1", "srv-l1", "local edit", schema.StatePendingUpdate, time.Now())
			extra := item("srv-t9", "srv-l1", "only here", schema.StateSynced, time.Now())
			for _, it := range []schema.Item{local, extra} {
				if err := dst.Put(ctx, schema.CollectionTasks, it); err != nil {
					t.Fatalf("Put() failed: %v", err)
				}
			}

			res, err := Import(ctx, dst, bytes.NewReader(export.Bytes()), FormatJSONL, tt.opts)
			if err != nil {
				t.Fatalf("Import() failed: %v", err)
			}
			if res.Skipped != tt.wantSkip {
				t.Errorf("Skipped = %d, want %d", res.Skipped, tt.wantSkip)
			}

			tasks, err := dst.Tasks().GetAll(ctx, store.Filter{})
			if err != nil {
				t.Fatalf("GetAll() failed: %v", err)
			}
			if len(tasks) != tt.wantTasks {
				t.Errorf("got %d tasks, want %d", len(tasks), tt.wantTasks)
			}
			got, err := dst.GetByID(ctx, schema.CollectionTasks, "srv-t1")
			if err != nil {
				t.Fatalf("GetByID() failed: %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("srv-t1 title = %q, want %q", got.Title, tt.wantTitle)
			}
		})
	}
}

func TestImport_SkipsInvalidRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"collection":"lists","id":"srv-l1","parentId":"user-1","title":"Home","status":"todo","priority":"medium","tags":[],"createdAt":"2026-03-01T09:00:00Z","syncState":"synced"}`,
		`{"collection":"notes","id":"n1","parentId":"user-1","title":"x","syncState":"synced"}`,
		`{"collection":"tasks","id":"offline_1_abc","parentId":"srv-l1","title":"bad state","syncState":"synced"}`,
		`{"collection":"tasks","id":"srv-t1","parentId":"srv-l1","title":"","syncState":"synced"}`,
		``,
	}, "\n")

	db := openStore(t, "tsync.db")
	res, err := Import(context.Background(), db, strings.NewReader(input), FormatJSONL, ImportOptions{})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if res.Lists != 1 || res.Tasks != 0 {
		t.Errorf("Import() = %+v, want 1 list", res)
	}
	if len(res.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(res.Errors), res.Errors)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format Format
		want   string
	}{
		{"malformed jsonl", "{\"collection\":\"lists\"}\n{oops\n", FormatJSONL, "line 2"},
		{"newer snapshot", "version: 99\nlists: []\n", FormatYAML, "newer"},
		{"unknown format", "", Format("csv"), "unknown format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDecode_EmptyYAML(t *testing.T) {
	records, err := Decode(strings.NewReader(""), FormatYAML)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestExportFile_ImportFileWithBackup(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, "src.db")
	seedStore(t, src)

	path := filepath.Join(t.TempDir(), "backup", "tsync.yaml")
	if _, err := ExportFile(ctx, src, path, FormatFromPath(path)); err != nil {
		t.Fatalf("ExportFile() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Errorf("export is not a YAML snapshot:\n%s", data)
	}

	dst := openStore(t, "dst.db")
	res, err := ImportFile(ctx, dst, path, ImportOptions{Backup: true})
	if err != nil {
		t.Fatalf("ImportFile() failed: %v", err)
	}
	if res.BackupCreated == "" {
		t.Fatal("no backup created")
	}
	if _, err := os.Stat(res.BackupCreated); err != nil {
		t.Errorf("backup missing: %v", err)
	}
	if res.Lists != 2 || res.Tasks != 4 {
		t.Errorf("ImportFile() = %+v", res)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"jsonl", FormatJSONL, false},
		{"JSON", FormatJSONL, false},
		{" yml ", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
