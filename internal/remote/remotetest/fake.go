// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
)

// Calls counts remote invocations per method.
type Calls struct {
	List   int
	Create int
	Update int
	Delete int
}

// Total returns the number of calls of any kind.
func (c Calls) Total() int {
	return c.List + c.Create + c.Update + c.Delete
}

// Fake is an in-memory remote store.
type Fake struct {
	mu      sync.RWMutex
	records map[schema.Collection]map[string]remote.Record // id -> record
	order   map[schema.Collection][]string
	nextID  int
	calls   Calls

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error
	// FailIDs makes Update and Delete of these ids fail with the error.
	FailIDs map[string]error
}

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{
		records: make(map[schema.Collection]map[string]remote.Record),
		order:   make(map[schema.Collection][]string),
		FailIDs: make(map[string]error),
	}
}

// SetErrors sets every injected error at once. Pass nil to clear.
func (f *Fake) SetErrors(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListErr, f.CreateErr, f.UpdateErr, f.DeleteErr = err, err, err, err
}

// FailID makes Update and Delete of id fail with err. Pass nil to clear.
func (f *Fake) FailID(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.FailIDs, id)
		return
	}
	f.FailIDs[id] = err
}

// Seed inserts a record directly, bypassing counters and error injection.
func (f *Fake) Seed(coll schema.Collection, rec remote.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(coll, rec)
}

// Get returns a stored record.
func (f *Fake) Get(coll schema.Collection, id string) (remote.Record, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rec, ok := f.records[coll][id]
	return rec, ok
}

// Len returns the number of records in a collection.
func (f *Fake) Len(coll schema.Collection) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records[coll])
}

// Calls returns the call counters.
func (f *Fake) Calls() Calls {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = Calls{}
}

// List implements remote.Client.
func (f *Fake) List(ctx context.Context, coll schema.Collection, parentID string) ([]remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.List++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := []remote.Record{}
	for _, id := range f.order[coll] {
		rec := f.records[coll][id]
		if rec.ParentID == parentID {
			result = append(result, cloneRecord(rec))
		}
	}
	return result, nil
}

// Create implements remote.Client.
func (f *Fake) Create(ctx context.Context, coll schema.Collection, parentID string, fields schema.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Create++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	fields.ParentID = parentID
	f.put(coll, remote.Record{ID: id, Fields: fields})
	return id, nil
}

// Update implements remote.Client.
func (f *Fake) Update(ctx context.Context, coll schema.Collection, parentID, id string, fields schema.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Update++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if err := f.FailIDs[id]; err != nil {
		return err
	}
	if _, ok := f.records[coll][id]; !ok {
		return fmt.Errorf("%s %s: %w", coll, id, remote.ErrNotFound)
	}
	fields.ParentID = parentID
	f.records[coll][id] = cloneRecord(remote.Record{ID: id, Fields: fields})
	return nil
}

// Delete implements remote.Client.
func (f *Fake) Delete(ctx context.Context, coll schema.Collection, parentID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Delete++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if err := f.FailIDs[id]; err != nil {
		return err
	}
	if _, ok := f.records[coll][id]; !ok {
		return fmt.Errorf("%s %s: %w", coll, id, remote.ErrNotFound)
	}
	delete(f.records[coll], id)
	order := f.order[coll][:0]
	for _, o := range f.order[coll] {
		if o != id {
			order = append(order, o)
		}
	}
	f.order[coll] = order
	return nil
}

func (f *Fake) put(coll schema.Collection, rec remote.Record) {
	if f.records[coll] == nil {
		f.records[coll] = make(map[string]remote.Record)
	}
	if _, exists := f.records[coll][rec.ID]; !exists {
		f.order[coll] = append(f.order[coll], rec.ID)
	}
	f.records[coll][rec.ID] = cloneRecord(rec)
}

func cloneRecord(rec remote.Record) remote.Record {
	return remote.Record{ID: rec.ID, Fields: schema.Item{Fields: rec.Fields}.DomainFields()}
}

var _ remote.Client = (*Fake)(nil)
