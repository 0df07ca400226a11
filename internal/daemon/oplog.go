package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/schema"
)

// OpLogEntry is one line of the operation log.
type OpLogEntry struct {
	// Seq increases by one per entry written by the same OpLog
	Seq int64 `json:"seq"`

	// Time is when the event happened
	Time time.Time `json:"time"`

	Kind       notify.Kind       `json:"kind"`
	Collection schema.Collection `json:"collection,omitempty"`
	ParentID   string            `json:"parentId,omitempty"`
	ID         string            `json:"id,omitempty"`
	PreviousID string            `json:"previousId,omitempty"`
	// Title of the record, when the event carried one
	Title  string             `json:"title,omitempty"`
	State  schema.SyncState   `json:"syncState,omitempty"`
	Result *notify.SyncResult `json:"result,omitempty"`
	Online *bool              `json:"online,omitempty"`
}

// OpLog appends committed notifications to w as JSON lines. Tentative
// events are not logged.
type OpLog struct {
	mu  sync.Mutex
	enc *json.Encoder
	seq int64
	err error
}

// NewOpLog writes entries to w, numbering them after lastSeq. Pass the Seq
// of the last existing entry when appending to an existing log.
func NewOpLog(w io.Writer, lastSeq int64) *OpLog {
	return &OpLog{enc: json.NewEncoder(w), seq: lastSeq}
}

// Publish implements notify.Publisher.
func (l *OpLog) Publish(ev notify.Event) {
	if ev.Stage != notify.StageCommitted {
		return
	}

	entry := OpLogEntry{
		Time:       ev.Timestamp,
		Kind:       ev.Kind,
		Collection: ev.Collection,
		ParentID:   ev.ParentID,
		ID:         ev.ID,
		PreviousID: ev.PreviousID,
		Result:     ev.Result,
		Online:     ev.Online,
	}
	if ev.Item != nil {
		entry.Title = ev.Item.Title
		entry.State = ev.Item.State
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	entry.Seq = l.seq
	if err := l.enc.Encode(entry); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first write error, if any.
func (l *OpLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// ParseOpLog reads entries in the order they were written. Blank lines are
// skipped; a malformed line is an error naming its line number.
func ParseOpLog(r io.Reader) ([]OpLogEntry, error) {
	var entries []OpLogEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry OpLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse op log line %d: %w", lineNum, err)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan op log: %w", err)
	}

	return entries, nil
}

// EntriesSince returns the entries with Seq greater than lastSeen, oldest
// first. With lastSeen 0 every entry is returned.
func EntriesSince(entries []OpLogEntry, lastSeen int64) []OpLogEntry {
	for i, entry := range entries {
		if entry.Seq > lastSeen {
			return entries[i:]
		}
	}
	return nil
}

// LastSeq returns the highest sequence number in entries, or 0.
func LastSeq(entries []OpLogEntry) int64 {
	var last int64
	for _, e := range entries {
		last = max(last, e.Seq)
	}
	return last
}

// Tail returns at most the last n entries.
func Tail(entries []OpLogEntry, n int) []OpLogEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
