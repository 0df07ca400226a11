package googletasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
)

func TestNotesRoundTrip(t *testing.T) {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   schema.Fields
	}{
		{"full", schema.Fields{Description: "line one\nline two", Priority: schema.PriorityHigh, Tags: []string{"a", "b"}, Status: schema.StatusInProgress, CreatedAt: created}},
		{"no description", schema.Fields{Priority: schema.PriorityLow, Tags: []string{}, Status: schema.StatusTodo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes := encodeNotes(tt.in)
			got := schema.Fields{Status: schema.StatusTodo, Tags: []string{}}
			decodeNotes(notes, &got)

			if got.Description != tt.in.Description {
				t.Errorf("Description = %q, want %q", got.Description, tt.in.Description)
			}
			if got.Priority != tt.in.Priority {
				t.Errorf("Priority = %q, want %q", got.Priority, tt.in.Priority)
			}
			if got.Status != tt.in.Status {
				t.Errorf("Status = %q, want %q", got.Status, tt.in.Status)
			}
			if diff := cmp.Diff(tt.in.Tags, got.Tags); diff != "" {
				t.Errorf("Tags mismatch (-want +got):\n%s", diff)
			}
			if !got.CreatedAt.Equal(tt.in.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tt.in.CreatedAt)
			}
		})
	}
}

func TestDecodeNotes_PlainNotesUntouched(t *testing.T) {
	var f schema.Fields
	decodeNotes("mentions tsync: inline but is not a footer", &f)
	if f.Description != "mentions tsync: inline but is not a footer" {
		t.Errorf("Description = %q", f.Description)
	}
	if f.Priority != "" {
		t.Errorf("Priority = %q, want empty", f.Priority)
	}
}

func TestDueAndStatusMapping(t *testing.T) {
	if got := encodeDue("2026-05-01"); got != "2026-05-01T00:00:00.000Z" {
		t.Errorf("encodeDue() = %q", got)
	}
	if got := decodeDue("2026-05-01T00:00:00.000Z"); got != "2026-05-01" {
		t.Errorf("decodeDue() = %q", got)
	}
	if encodeDue("") != "" || decodeDue("") != "" {
		t.Error("empty due date should stay empty")
	}
	if encodeStatus(schema.StatusDone) != "completed" || encodeStatus(schema.StatusInProgress) != "needsAction" {
		t.Error("encodeStatus mapping wrong")
	}
	if decodeStatus("completed") != schema.StatusDone || decodeStatus("needsAction") != schema.StatusTodo {
		t.Error("decodeStatus mapping wrong")
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", &googleapi.Error{Code: 404}, remote.ErrNotFound},
		{"server error", &googleapi.Error{Code: 503}, remote.ErrUnavailable},
		{"rate limited", &googleapi.Error{Code: 429}, remote.ErrUnavailable},
		{"forbidden", &googleapi.Error{Code: 403}, remote.ErrRejected},
		{"bad request", &googleapi.Error{Code: 400}, remote.ErrRejected},
		{"deadline", fmt.Errorf("Get: %w", context.DeadlineExceeded), remote.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("wrapError() = %v, want wrapping %v", got, tt.want)
			}
		})
	}
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}
}

func TestClient_ListTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/lists/L1/tasks") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"id":"T1","title":"milk","status":"needsAction","due":"2026-05-01T00:00:00.000Z",
			 "notes":"2%\n\ntsync: priority=high; tags=dairy","updated":"2026-04-01T08:00:00.000Z"},
			{"id":"T2","title":"bread","status":"completed","updated":"2026-04-01T09:00:00.000Z"}
		]}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := NewWithHTTPClient(ctx, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewWithHTTPClient() failed: %v", err)
	}

	got, err := c.List(ctx, schema.CollectionTasks, "L1")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(got))
	}

	milk := got[0]
	if milk.ID != "T1" || milk.ParentID != "L1" || milk.Description != "2%" {
		t.Errorf("milk = %+v", milk)
	}
	if milk.Priority != schema.PriorityHigh || milk.DueDate != "2026-05-01" {
		t.Errorf("milk metadata = %s/%s", milk.Priority, milk.DueDate)
	}
	if diff := cmp.Diff([]string{"dairy"}, milk.Tags); diff != "" {
		t.Errorf("milk tags mismatch (-want +got):\n%s", diff)
	}
	if got[1].Status != schema.StatusDone {
		t.Errorf("bread Status = %s, want done", got[1].Status)
	}

	if _, err := c.List(ctx, schema.CollectionTasks, "missing"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("List(missing) error = %v, want ErrNotFound", err)
	}
}
