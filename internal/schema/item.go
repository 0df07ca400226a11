package schema

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Collection names one of the two logical record collections.
type Collection string

const (
	// CollectionLists holds task lists. Their parent is the owning user.
	CollectionLists Collection = "lists"
	// CollectionTasks holds tasks. Their parent is the owning list.
	CollectionTasks Collection = "tasks"
)

// Collections returns every collection in the order they must be pushed:
// lists first, so a task's parent exists remotely before the task does.
func Collections() []Collection {
	return []Collection{CollectionLists, CollectionTasks}
}

// IsValid reports whether c is a known collection.
func (c Collection) IsValid() bool {
	return c == CollectionLists || c == CollectionTasks
}

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inProgress"
	StatusDone       Status = "done"
)

func (s Status) IsValid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

// Priority orders tasks. Rank gives high > medium > low.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Rank returns 3 for high, 2 for medium, 1 for low and 0 otherwise.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// DateLayout is the format of Fields.DueDate.
const DateLayout = "2006-01-02"

// Fields are the domain fields of a record. They are what travels to the
// remote store; provenance never does.
type Fields struct {
	// ===== Ownership =====
	ParentID string `json:"parentId" yaml:"parentId"`

	// ===== Content =====
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// ===== Workflow =====
	Status   Status   `json:"status" yaml:"status"`
	Priority Priority `json:"priority" yaml:"priority"`
	DueDate  string   `json:"dueDate,omitempty" yaml:"dueDate,omitempty"` // YYYY-MM-DD
	Tags     []string `json:"tags" yaml:"tags"`

	// ===== Timestamps =====
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
}

// Item is one list or task record as held by the local store.
type Item struct {
	ID string `json:"id" yaml:"id"`
	Fields `yaml:",inline"`

	// ===== Provenance =====
	State      SyncState  `json:"syncState" yaml:"syncState"`
	SyncFailed bool       `json:"syncFailed" yaml:"syncFailed"`
	MarkedAt   *time.Time `json:"markedAt,omitempty" yaml:"markedAt,omitempty"`
}

// Validate checks the domain fields. It does not look at provenance.
func (f *Fields) Validate() error {
	if f.ParentID == "" {
		return fmt.Errorf("parentId is required")
	}
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(f.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(f.Title))
	}
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("invalid status %q", f.Status)
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", f.Priority)
	}
	if f.DueDate != "" {
		if _, err := time.Parse(DateLayout, f.DueDate); err != nil {
			return fmt.Errorf("invalid dueDate %q: expected YYYY-MM-DD", f.DueDate)
		}
	}
	return nil
}

// SetDefaults fills in status, priority and tags when they are omitted.
func (f *Fields) SetDefaults() {
	if f.Status == "" {
		f.Status = StatusTodo
	}
	if f.Priority == "" {
		f.Priority = PriorityMedium
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	f.Tags = NormalizeTags(f.Tags)
}

// HasTag reports whether tag is one of the item's tags.
func (f *Fields) HasTag(tag string) bool {
	return slices.Contains(f.Tags, tag)
}

// NormalizeTags trims, drops empty and duplicate tags, and sorts the result.
// Tags are a set, so order carries no meaning and is made canonical.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	c := it
	c.Tags = slices.Clone(it.Tags)
	if it.LastUpdated != nil {
		t := *it.LastUpdated
		c.LastUpdated = &t
	}
	if it.MarkedAt != nil {
		t := *it.MarkedAt
		c.MarkedAt = &t
	}
	return c
}

// Same reports whether two items hold the same id, fields and provenance.
// Tag order matters; stores keep tags in the order they were written.
func (it Item) Same(other Item) bool {
	return it.ID == other.ID &&
		it.ParentID == other.ParentID &&
		it.Title == other.Title &&
		it.Description == other.Description &&
		it.Status == other.Status &&
		it.Priority == other.Priority &&
		it.DueDate == other.DueDate &&
		slices.Equal(it.Tags, other.Tags) &&
		it.CreatedAt.Equal(other.CreatedAt) &&
		sameTime(it.LastUpdated, other.LastUpdated) &&
		it.State == other.State &&
		it.SyncFailed == other.SyncFailed &&
		sameTime(it.MarkedAt, other.MarkedAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DomainFields returns the fields with provenance stripped, ready to send to
// the remote store.
func (it Item) DomainFields() Fields {
	return it.Clone().Fields
}

// IsOffline reports whether the last successful write went only to the
// local store.
func (it Item) IsOffline() bool {
	return it.State == StatePendingCreate || it.State == StatePendingUpdate
}

// MarkedForDeletion reports whether a local delete awaits remote confirmation.
func (it Item) MarkedForDeletion() bool {
	return it.State == StatePendingDelete
}

// IsActive reports whether the item belongs in active views.
func (it Item) IsActive() bool {
	return !it.MarkedForDeletion()
}

// NeedsSync reports whether the sweeper has work to do for this item.
func (it Item) NeedsSync() bool {
	return it.State != StateSynced || it.SyncFailed
}
