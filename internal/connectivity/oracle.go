// Package connectivity answers "is the remote store reachable right now?"
//
// An Oracle gives a point-in-time reading. A Notifier additionally reports
// transitions so the sync daemon can sweep when connectivity returns. The
// reading is advisory: a remote call made while online may still fail, and
// callers treat that the same as being offline.
package connectivity

import (
	"sync"
	"time"
)

// Oracle reports whether the remote store is believed reachable.
type Oracle interface {
	IsOnline() bool
}

// Transition is a change of connectivity.
type Transition struct {
	Online bool
	At     time.Time
}

// Notifier delivers transitions. The returned func unsubscribes and closes
// the channel.
type Notifier interface {
	Subscribe() (<-chan Transition, func())
}

// broadcaster fans transitions out to subscribers. Slow subscribers miss
// transitions rather than block the publisher.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Transition
}

func (b *broadcaster) Subscribe() (<-chan Transition, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]chan Transition)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Transition, 8)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish(online bool) {
	tr := Transition{Online: online, At: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- tr:
		default:
		}
	}
}

// Switch is a manually controlled oracle.
type Switch struct {
	broadcaster
	mu     sync.RWMutex
	online bool
}

// NewSwitch returns a Switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{online: online}
}

func (s *Switch) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Set changes the state and notifies subscribers if it changed.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		s.publish(online)
	}
}
