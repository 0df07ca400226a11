package googletasks

import (
	"strings"
	"time"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// footerPrefix starts the metadata line appended to task notes. Google Tasks
// has no priority, tags or in-progress status, so they travel here.
const footerPrefix = "tsync:"

// encodeNotes renders description plus the metadata footer.
func encodeNotes(f schema.Fields) string {
	var meta []string
	meta = append(meta, "priority="+string(f.Priority))
	if len(f.Tags) > 0 {
		meta = append(meta, "tags="+strings.Join(f.Tags, ","))
	}
	if f.Status == schema.StatusInProgress {
		meta = append(meta, "status="+string(schema.StatusInProgress))
	}
	if !f.CreatedAt.IsZero() {
		meta = append(meta, "created="+f.CreatedAt.UTC().Format(time.RFC3339))
	}

	footer := footerPrefix + " " + strings.Join(meta, "; ")
	if f.Description == "" {
		return footer
	}
	return f.Description + "\n\n" + footer
}

// decodeNotes splits notes into description and footer metadata and applies
// the metadata to f.
func decodeNotes(notes string, f *schema.Fields) {
	f.Description = notes
	idx := strings.LastIndex(notes, footerPrefix)
	if idx < 0 || (idx > 0 && notes[idx-1] != '\n') {
		return
	}
	line := notes[idx+len(footerPrefix):]
	if strings.Contains(line, "\n") {
		return
	}
	f.Description = strings.TrimRight(notes[:idx], "\n")

	for _, kv := range strings.Split(line, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		switch key {
		case "priority":
			if p := schema.Priority(value); p.IsValid() {
				f.Priority = p
			}
		case "tags":
			f.Tags = schema.NormalizeTags(strings.Split(value, ","))
		case "status":
			if s := schema.Status(value); s.IsValid() && f.Status != schema.StatusDone {
				f.Status = s
			}
		case "created":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				f.CreatedAt = t
			}
		}
	}
}

// Google stores due dates as RFC 3339 timestamps at midnight UTC.
func encodeDue(date string) string {
	if date == "" {
		return ""
	}
	return date + "T00:00:00.000Z"
}

func decodeDue(due string) string {
	if len(due) < len(schema.DateLayout) {
		return ""
	}
	return due[:len(schema.DateLayout)]
}

func encodeStatus(s schema.Status) string {
	if s == schema.StatusDone {
		return "completed"
	}
	return "needsAction"
}

func decodeStatus(s string) schema.Status {
	if s == "completed" {
		return schema.StatusDone
	}
	return schema.StatusTodo
}
