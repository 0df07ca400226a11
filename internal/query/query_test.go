package query

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/tsync/internal/schema"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func item(id, title string, status schema.Status, prio schema.Priority, due string, tags ...string) schema.Item {
	it := schema.Item{ID: id, State: schema.StateSynced}
	it.Title = title
	it.Status = status
	it.Priority = prio
	it.DueDate = due
	it.Tags = tags
	it.CreatedAt = t0
	return it
}

func ids(items []schema.Item) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func fixture() []schema.Item {
	deleted := item("x", "Gone", schema.StatusTodo, schema.PriorityHigh, "", "home")
	deleted.State = schema.StatePendingDelete

	offline := item("d", "dishes", schema.StatusDone, schema.PriorityLow, "2026-05-30", "home")
	offline.State = schema.StatePendingUpdate
	offline.SyncFailed = true

	b := item("b", "Buy milk", schema.StatusTodo, schema.PriorityMedium, "", "errand")
	b.CreatedAt = t0.Add(time.Hour)

	return []schema.Item{
		item("a", "apples", schema.StatusInProgress, schema.PriorityHigh, "2026-06-10", "errand", "food"),
		b,
		offline,
		deleted,
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"no options drops deleted", Options{}, []string{"a", "b", "d"}},
		{"status", Options{Status: schema.StatusTodo}, []string{"b"}},
		{"status all", Options{Status: "all"}, []string{"a", "b", "d"}},
		{"tag", Options{Tag: "errand"}, []string{"a", "b"}},
		{"title asc", Options{SortBy: SortTitle}, []string{"a", "b", "d"}},
		{"title desc", Options{SortBy: SortTitle, Descending: true}, []string{"d", "b", "a"}},
		{"priority desc", Options{SortBy: SortPriority, Descending: true}, []string{"a", "b", "d"}},
		{"priority asc", Options{SortBy: SortPriority}, []string{"d", "b", "a"}},
		{"due asc, missing first", Options{SortBy: SortDueDate}, []string{"b", "d", "a"}},
		{"created desc", Options{SortBy: SortCreatedAt, Descending: true}, []string{"b", "a", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(fixture(), tt.opts)
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	in := fixture()
	_ = Apply(in, Options{SortBy: SortTitle, Descending: true})
	if diff := cmp.Diff([]string{"a", "b", "d", "x"}, ids(in)); diff != "" {
		t.Errorf("input reordered (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(fixture())
	want := Stats{Total: 3, Todo: 1, InProgress: 1, Done: 1, Offline: 1, NeedsSync: 1}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestTags(t *testing.T) {
	got := Tags(fixture())
	if diff := cmp.Diff([]string{"errand", "food", "home"}, got); diff != "" {
		t.Errorf("Tags() mismatch (-want +got):\n%s", diff)
	}
	if got := Tags(nil); got == nil || len(got) != 0 {
		t.Errorf("Tags(nil) = %#v, want empty slice", got)
	}
}

func TestSearch(t *testing.T) {
	items := fixture()
	items[1].Description = "two litres of MILK"

	tests := []struct {
		keyword string
		want    []string
	}{
		{"MILK", []string{"b"}},
		{"litres", []string{"b"}},
		{"gone", []string{}},
		{"", []string{"a", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(Search(items, tt.keyword))); diff != "" {
				t.Errorf("Search(%q) mismatch (-want +got):\n%s", tt.keyword, diff)
			}
		})
	}
}

func TestOverdue(t *testing.T) {
	items := fixture()
	items[0].DueDate = "2026-05-01"
	got := Overdue(items, t0)
	// d is overdue but done; a is overdue and in progress.
	if diff := cmp.Diff([]string{"a"}, ids(got)); diff != "" {
		t.Errorf("Overdue() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSortField(t *testing.T) {
	if f, ok := ParseSortField("priority"); !ok || f != SortPriority {
		t.Errorf("ParseSortField(priority) = %q, %v", f, ok)
	}
	if _, ok := ParseSortField("color"); ok {
		t.Error("ParseSortField(color) should fail")
	}
}
