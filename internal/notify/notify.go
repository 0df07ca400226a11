// Package notify carries change notifications from the engine and sweeper
// to observers (CLI output, the dashboard, the daemon log).
//
// Mutations publish twice: a tentative event before the durable write and a
// committed event after it. Observers that render optimistically act on the
// tentative event; observers that need durable state wait for committed.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/tsync/internal/schema"
)

// Stage says whether an event precedes or follows the durable write.
type Stage string

const (
	StageTentative Stage = "tentative"
	StageCommitted Stage = "committed"
)

// Kind is what happened.
type Kind string

const (
	// KindUpsert: a record was created or updated.
	KindUpsert Kind = "upsert"
	// KindRemove: a record left the active view.
	KindRemove Kind = "remove"
	// KindResync: the cache for a parent was reloaded; observers should
	// discard optimistic state for it.
	KindResync Kind = "resync"
	// KindSync: a sweep finished.
	KindSync Kind = "sync"
	// KindConnectivity: the connectivity oracle changed state.
	KindConnectivity Kind = "connectivity"
)

// SyncResult is the outcome of one sweep.
type SyncResult struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Event is one notification.
type Event struct {
	Stage      Stage             `json:"stage"`
	Kind       Kind              `json:"kind"`
	Collection schema.Collection `json:"collection,omitempty"`
	ParentID   string            `json:"parentId,omitempty"`
	ID         string            `json:"id,omitempty"`
	// PreviousID is set when a record changed id (local id replaced by a
	// server id).
	PreviousID string       `json:"previousId,omitempty"`
	Item       *schema.Item `json:"item,omitempty"`
	Result     *SyncResult  `json:"result,omitempty"`
	Online     *bool        `json:"online,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// func unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Item != nil {
		c := e.Item.Clone()
		e.Item = &c
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (h *Hub) Dropped() int {
	return int(h.dropped.Load())
}

// Recorder keeps every event in memory. Tests use it to assert ordering.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Item != nil {
		c := e.Item.Clone()
		e.Item = &c
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Tee returns a Publisher that forwards every event to each of pubs in order.
func Tee(pubs ...Publisher) Publisher {
	return tee(pubs)
}

type tee []Publisher

func (t tee) Publish(e Event) {
	for _, p := range t {
		p.Publish(e)
	}
}
