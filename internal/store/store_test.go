package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// setupTestDB opens a fresh store in a temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testItem(id, parent string, offset int, state schema.SyncState) schema.Item {
	return schema.Item{
		ID: id,
		Fields: schema.Fields{
			ParentID:  parent,
			Title:     "item " + id,
			Status:    schema.StatusTodo,
			Priority:  schema.PriorityMedium,
			Tags:      []string{},
			CreatedAt: base.Add(time.Duration(offset) * time.Second),
		},
		State: state,
	}
}

func TestOpen_CreatesTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"lists", "tasks"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}

	if err := db.InitSchemaContext(context.Background()); err != nil {
		t.Errorf("second InitSchemaContext() failed: %v", err)
	}
}

func TestPutAndGetByID_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	updated := base.Add(time.Hour)
	marked := base.Add(2 * time.Hour)
	want := schema.Item{
		ID: "srv-1",
		Fields: schema.Fields{
			ParentID:    "list-1",
			Title:       "Write report",
			Description: "quarterly",
			Status:      schema.StatusInProgress,
			Priority:    schema.PriorityHigh,
			DueDate:     "2026-03-15",
			Tags:        []string{"work", "urgent"},
			CreatedAt:   base,
			LastUpdated: &updated,
		},
		State:      schema.StatePendingDelete,
		SyncFailed: true,
		MarkedAt:   &marked,
	}

	if err := db.Tasks().Put(ctx, want); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, err := db.Tasks().GetByID(ctx, "srv-1")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// Same id in the other collection is independent.
	if _, err := db.Lists().GetByID(ctx, "srv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lists().GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestPut_Upserts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	it := testItem("a", "p", 0, schema.StateSynced)
	if err := db.Tasks().Put(ctx, it); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	it.Title = "renamed"
	it.State = schema.StatePendingUpdate
	if err := db.Tasks().Put(ctx, it); err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}

	got, err := db.Tasks().GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Title != "renamed" || got.State != schema.StatePendingUpdate {
		t.Errorf("got %q/%s, want renamed/%s", got.Title, got.State, schema.StatePendingUpdate)
	}
	if n, _ := db.Tasks().Count(ctx, Filter{}); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestGetAll_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	failed := testItem("d", "p1", 3, schema.StateSynced)
	failed.SyncFailed = true
	items := []schema.Item{
		testItem("c", "p1", 2, schema.StatePendingDelete),
		testItem("a", "p1", 0, schema.StateSynced),
		testItem("offline_1_x", "p1", 1, schema.StatePendingCreate),
		failed,
		testItem("e", "p2", 4, schema.StatePendingUpdate),
	}
	if err := db.Tasks().BulkPut(ctx, items); err != nil {
		t.Fatalf("BulkPut() failed: %v", err)
	}

	ids := func(items []schema.Item) []string {
		out := []string{}
		for _, it := range items {
			out = append(out, it.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all ordered by createdAt", Filter{}, []string{"a", "offline_1_x", "c", "d", "e"}},
		{"by parent", Filter{ParentID: "p2"}, []string{"e"}},
		{"active only", Filter{ParentID: "p1", ActiveOnly: true}, []string{"a", "offline_1_x", "d"}},
		{"pending only", Filter{PendingOnly: true}, []string{"offline_1_x", "c", "d", "e"}},
		{"match predicate", Filter{Match: func(it schema.Item) bool { return it.ID > "c" }}, []string{"offline_1_x", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Tasks().GetAll(ctx, tt.filter)
			if err != nil {
				t.Fatalf("GetAll() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetAll_EmptyIsNonNil(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.Lists().GetAll(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if got == nil {
		t.Error("GetAll() returned nil slice for empty table")
	}
}

func TestDeleteAndClear(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.Lists().Put(ctx, testItem(fmt.Sprintf("l%d", i), "user", i, schema.StateSynced)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	if err := db.Lists().Delete(ctx, "l1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := db.Lists().Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
	if n, _ := db.Lists().Count(ctx, Filter{}); n != 2 {
		t.Errorf("Count() after delete = %d, want 2", n)
	}

	if err := db.Lists().Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n, _ := db.Lists().Count(ctx, Filter{}); n != 0 {
		t.Errorf("Count() after clear = %d, want 0", n)
	}
}

func TestReplaceID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	local := testItem("offline_1_abc", "p", 0, schema.StatePendingCreate)
	if err := db.Tasks().Put(ctx, local); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	synced := local
	synced.ID = "srv-9"
	synced.State = schema.StateSynced
	if err := db.Tasks().ReplaceID(ctx, local.ID, synced); err != nil {
		t.Fatalf("ReplaceID() failed: %v", err)
	}

	if _, err := db.Tasks().GetByID(ctx, local.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old id still present: err = %v", err)
	}
	got, err := db.Tasks().GetByID(ctx, "srv-9")
	if err != nil {
		t.Fatalf("GetByID(new) failed: %v", err)
	}
	if got.State != schema.StateSynced {
		t.Errorf("State = %s, want synced", got.State)
	}
}

func TestReparent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := []schema.Item{
		testItem("t1", "offline_1_list", 0, schema.StatePendingCreate),
		testItem("t2", "offline_1_list", 1, schema.StatePendingCreate),
		testItem("t3", "other", 2, schema.StateSynced),
	}
	if err := db.Tasks().BulkPut(ctx, items); err != nil {
		t.Fatalf("BulkPut() failed: %v", err)
	}

	n, err := db.Tasks().Reparent(ctx, "offline_1_list", "srv-list")
	if err != nil {
		t.Fatalf("Reparent() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Reparent() moved %d, want 2", n)
	}
	if c, _ := db.Tasks().Count(ctx, Filter{ParentID: "srv-list"}); c != 2 {
		t.Errorf("Count(srv-list) = %d, want 2", c)
	}
}

func TestReplaceSynced_KeepsPendingDropsStale(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	failed := testItem("failed", "p", 3, schema.StateSynced)
	failed.SyncFailed = true
	failed.Title = "local edit"
	local := []schema.Item{
		testItem("stale", "p", 0, schema.StateSynced),
		testItem("offline_1_new", "p", 1, schema.StatePendingCreate),
		testItem("edited", "p", 2, schema.StatePendingUpdate),
		failed,
		testItem("other-parent", "q", 4, schema.StateSynced),
	}
	if err := db.Tasks().BulkPut(ctx, local); err != nil {
		t.Fatalf("BulkPut() failed: %v", err)
	}

	remoteEdited := testItem("edited", "p", 2, "")
	remoteEdited.Title = "remote version"
	remoteFailed := testItem("failed", "p", 3, "")
	remoteFailed.Title = "remote version"
	fresh := []schema.Item{
		testItem("fresh", "p", 5, ""),
		remoteEdited,
		remoteFailed,
	}
	if err := db.Tasks().ReplaceSynced(ctx, "p", fresh); err != nil {
		t.Fatalf("ReplaceSynced() failed: %v", err)
	}

	got, err := db.Tasks().GetAll(ctx, Filter{ParentID: "p"})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	titles := map[string]string{}
	for _, it := range got {
		titles[it.ID] = it.Title
	}
	want := map[string]string{
		"offline_1_new": "item offline_1_new",
		"edited":        "item edited",
		"failed":        "local edit",
		"fresh":         "item fresh",
	}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("cache mismatch (-want +got):\n%s", diff)
	}

	freshGot, _ := db.Tasks().GetByID(ctx, "fresh")
	if freshGot.State != schema.StateSynced {
		t.Errorf("fresh State = %s, want synced", freshGot.State)
	}
	if _, err := db.Tasks().GetByID(ctx, "other-parent"); err != nil {
		t.Errorf("record under another parent was touched: %v", err)
	}
}

func TestStatsContext(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_ = db.Lists().Put(ctx, testItem("l1", "u", 0, schema.StateSynced))
	_ = db.Lists().Put(ctx, testItem("l2", "u", 1, schema.StatePendingDelete))
	_ = db.Tasks().Put(ctx, testItem("t1", "l1", 0, schema.StateSynced))
	_ = db.Tasks().Put(ctx, testItem("offline_1_t", "l1", 1, schema.StatePendingCreate))

	got, err := db.StatsContext(ctx)
	if err != nil {
		t.Fatalf("StatsContext() failed: %v", err)
	}
	want := Stats{Lists: 1, Tasks: 2, Pending: 2}
	if got != want {
		t.Errorf("StatsContext() = %+v, want %+v", got, want)
	}
}

func TestTable_UnknownCollectionPanics(t *testing.T) {
	db := setupTestDB(t)
	defer func() {
		if recover() == nil {
			t.Error("Table(unknown) did not panic")
		}
	}()
	db.Table("projects")
}

func TestRewrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tasks := db.Tasks()

	orig := testItem("offline_1_aaa", "list-1", 0, schema.StatePendingCreate)
	if err := tasks.Put(ctx, orig); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	stored, err := tasks.GetByID(ctx, orig.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}

	// Leaving the record untouched.
	err = tasks.Rewrite(ctx, orig.ID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		if !found || !cur.Same(stored) {
			t.Errorf("Rewrite() saw found=%v cur=%+v, want the stored record", found, cur)
		}
		return nil, false
	})
	if err != nil {
		t.Fatalf("Rewrite() failed: %v", err)
	}

	// Re-keying removes the old row.
	err = tasks.Rewrite(ctx, orig.ID, func(cur schema.Item, found bool) (*schema.Item, bool) {
		next := cur.Clone()
		next.ID = "srv-1"
		next.State = schema.StateSynced
		return &next, true
	})
	if err != nil {
		t.Fatalf("Rewrite(re-key) failed: %v", err)
	}
	if _, err := tasks.GetByID(ctx, orig.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(old id) error = %v, want ErrNotFound", err)
	}
	got, err := tasks.GetByID(ctx, "srv-1")
	if err != nil {
		t.Fatalf("GetByID(new id) failed: %v", err)
	}
	if got.Title != orig.Title || got.State != schema.StateSynced {
		t.Errorf("re-keyed record = %q %s, want %q synced", got.Title, got.State, orig.Title)
	}

	// A missing record can be created.
	err = tasks.Rewrite(ctx, "srv-2", func(cur schema.Item, found bool) (*schema.Item, bool) {
		if found {
			t.Error("Rewrite() found a record that was never stored")
		}
		next := testItem("srv-2", "list-1", 1, schema.StatePendingDelete)
		return &next, true
	})
	if err != nil {
		t.Fatalf("Rewrite(missing) failed: %v", err)
	}

	// Deleting.
	err = tasks.Rewrite(ctx, "srv-1", func(cur schema.Item, found bool) (*schema.Item, bool) {
		return nil, true
	})
	if err != nil {
		t.Fatalf("Rewrite(delete) failed: %v", err)
	}

	items, err := tasks.GetAll(ctx, Filter{})
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "srv-2" {
		t.Errorf("GetAll() = %v, want only srv-2", items)
	}
}

func TestRewrite_SameAfterRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	marked := time.Now()
	it := testItem("srv-1", "list-1", 0, schema.StatePendingDelete)
	it.Tags = []string{"b", "a"}
	it.MarkedAt = &marked
	if err := db.Tasks().Put(ctx, it); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, err := db.Tasks().GetByID(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if !got.Same(it) {
		t.Errorf("stored record not Same as written:\n got %+v\nwant %+v", got, it)
	}

	got.Title = "changed"
	if got.Same(it) {
		t.Error("Same() ignored a title change")
	}
}
