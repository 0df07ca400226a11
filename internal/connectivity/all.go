package connectivity

import "sync"

// All is online only while every member oracle is online.
type All struct {
	oracles []Oracle
}

// Combine returns an oracle over the given members.
func Combine(oracles ...Oracle) *All {
	return &All{oracles: oracles}
}

func (a *All) IsOnline() bool {
	for _, o := range a.oracles {
		if !o.IsOnline() {
			return false
		}
	}
	return true
}

// Subscribe merges the transitions of every member that is a Notifier and
// emits one whenever the combined state changes.
func (a *All) Subscribe() (<-chan Transition, func()) {
	out := make(chan Transition, 8)
	merged := make(chan Transition, 8)
	done := make(chan struct{})

	var unsubs []func()
	var wg sync.WaitGroup
	for _, o := range a.oracles {
		n, ok := o.(Notifier)
		if !ok {
			continue
		}
		ch, unsub := n.Subscribe()
		unsubs = append(unsubs, unsub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tr := range ch {
				select {
				case merged <- tr:
				case <-done:
					return
				}
			}
		}()
	}

	last := a.IsOnline()
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case tr := <-merged:
				now := a.IsOnline()
				if now == last {
					continue
				}
				last = now
				select {
				case out <- Transition{Online: now, At: tr.At}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			for _, u := range unsubs {
				u()
			}
			wg.Wait()
		})
	}
}
