// Package query filters, sorts and summarizes items already read from the
// local store. It never touches storage.
package query

import (
	"slices"
	"strings"
	"time"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// SortField names a sortable field.
type SortField string

const (
	SortNone      SortField = ""
	SortTitle     SortField = "title"
	SortPriority  SortField = "priority"
	SortDueDate   SortField = "dueDate"
	SortCreatedAt SortField = "createdAt"
)

// ParseSortField validates a sort field name.
func ParseSortField(s string) (SortField, bool) {
	switch f := SortField(s); f {
	case SortNone, SortTitle, SortPriority, SortDueDate, SortCreatedAt:
		return f, true
	}
	return SortNone, false
}

// Options configures Apply.
type Options struct {
	// Status keeps one status (empty or "all" = every status)
	Status schema.Status
	// Tag keeps items carrying the tag (empty or "all" = every tag)
	Tag string
	// SortBy orders the result (empty = keep input order)
	SortBy SortField
	// Descending reverses the sort
	Descending bool
}

// Apply filters and sorts items. Items pending deletion are always dropped.
// The input slice is not modified.
func Apply(items []schema.Item, opts Options) []schema.Item {
	out := make([]schema.Item, 0, len(items))
	for _, it := range items {
		if !it.IsActive() {
			continue
		}
		if opts.Status != "" && opts.Status != "all" && it.Status != opts.Status {
			continue
		}
		if opts.Tag != "" && opts.Tag != "all" && !it.HasTag(opts.Tag) {
			continue
		}
		out = append(out, it)
	}
	Sort(out, opts.SortBy, opts.Descending)
	return out
}

// Sort orders items in place by field. Priority orders low < medium < high;
// missing due dates sort first ascending. The sort is stable.
func Sort(items []schema.Item, field SortField, descending bool) {
	if field == SortNone {
		return
	}
	slices.SortStableFunc(items, func(a, b schema.Item) int {
		c := compare(a, b, field)
		if descending {
			return -c
		}
		return c
	})
}

func compare(a, b schema.Item, field SortField) int {
	switch field {
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case SortDueDate:
		return dueUnix(a).Compare(dueUnix(b))
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

func dueUnix(it schema.Item) time.Time {
	t, err := time.Parse(schema.DateLayout, it.DueDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MatchKeyword returns a predicate matching title or description
// case-insensitively. An empty keyword matches everything.
func MatchKeyword(keyword string) func(schema.Item) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	return func(it schema.Item) bool {
		if kw == "" {
			return true
		}
		return strings.Contains(strings.ToLower(it.Title), kw) ||
			strings.Contains(strings.ToLower(it.Description), kw)
	}
}

// Search returns the active items matching keyword.
func Search(items []schema.Item, keyword string) []schema.Item {
	match := MatchKeyword(keyword)
	out := []schema.Item{}
	for _, it := range items {
		if it.IsActive() && match(it) {
			out = append(out, it)
		}
	}
	return out
}

// Stats summarizes active items.
type Stats struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
	// Offline counts items whose last write reached only the local store.
	Offline int `json:"offline"`
	// NeedsSync counts items whose last remote write failed.
	NeedsSync int `json:"needsSync"`
}

// Summarize computes Stats over the active items.
func Summarize(items []schema.Item) Stats {
	var s Stats
	for _, it := range items {
		if !it.IsActive() {
			continue
		}
		s.Total++
		switch it.Status {
		case schema.StatusTodo:
			s.Todo++
		case schema.StatusInProgress:
			s.InProgress++
		case schema.StatusDone:
			s.Done++
		}
		if it.IsOffline() {
			s.Offline++
		}
		if it.SyncFailed {
			s.NeedsSync++
		}
	}
	return s
}

// Tags returns the distinct tags of active items, sorted.
func Tags(items []schema.Item) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, it := range items {
		if !it.IsActive() {
			continue
		}
		for _, t := range it.Tags {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Overdue returns active, unfinished items due before today.
func Overdue(items []schema.Item, today time.Time) []schema.Item {
	cutoff := today.Format(schema.DateLayout)
	out := []schema.Item{}
	for _, it := range items {
		if it.IsActive() && it.Status != schema.StatusDone && it.DueDate != "" && it.DueDate < cutoff {
			out = append(out, it)
		}
	}
	return out
}
