package ui

import (
	"strings"
	"testing"

	"github.com/mschirtzinger/tsync/internal/schema"
)

func TestFormatItem(t *testing.T) {
	tests := []struct {
		name string
		item schema.Item
		want []string
		not  []string
	}{
		{
			name: "synced todo",
			item: schema.Item{ID: "srv-1", State: schema.StateSynced, Fields: schema.Fields{
				Title: "buy milk", Status: schema.StatusTodo, Priority: schema.PriorityMedium}},
			want: []string{"[ ]", "buy milk", "srv-1"},
			not:  []string{"offline", "medium", "("},
		},
		{
			name: "offline high priority with tags",
			item: schema.Item{ID: "offline_1_abc", State: schema.StatePendingCreate, Fields: schema.Fields{
				Title: "pack", Status: schema.StatusDone, Priority: schema.PriorityHigh,
				DueDate: "2026-05-01", Tags: []string{"trip", "home"}}},
			want: []string{"[x]", "high", "due 2026-05-01", "#trip #home", "offline"},
		},
		{
			name: "failed sync",
			item: schema.Item{ID: "srv-2", State: schema.StateSynced, SyncFailed: true, Fields: schema.Fields{
				Title: "call", Status: schema.StatusInProgress}},
			want: []string{"[~]", "sync failed"},
		},
		{
			name: "pending delete",
			item: schema.Item{ID: "srv-3", State: schema.StatePendingDelete, Fields: schema.Fields{Title: "old"}},
			want: []string{"deleting"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatItem(tt.item)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("FormatItem() = %q, missing %q", got, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("FormatItem() = %q, should not contain %q", got, n)
				}
			}
		})
	}
}

func TestBox(t *testing.T) {
	out := Box("Status", []Row{{"Lists", "2"}, {"Pending", "5"}})
	for _, w := range []string{"Status", "Lists", "2", "Pending", "5"} {
		if !strings.Contains(out, w) {
			t.Errorf("Box() missing %q:\n%s", w, out)
		}
	}
}
