package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsConnectivity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", fmt.Errorf("list: %w", ErrUnavailable), true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "db"}, true},
		{"string timeout", errors.New("rpc error: code = DeadlineExceeded desc = timeout"), true},
		{"not found", ErrNotFound, false},
		{"rejected", fmt.Errorf("insert: %w", ErrRejected), false},
		{"rejected mentioning network", fmt.Errorf("403 caller not on allowed network: %w", ErrRejected), false},
		{"not found mentioning unavailable", fmt.Errorf("tasklist unavailable or deleted: %w", ErrNotFound), false},
		{"unauthorized mentioning timeout", fmt.Errorf("401 session timeout: %w", ErrRejected), false},
		{"plain", errors.New("permission denied"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectivity(tt.err); got != tt.want {
				t.Errorf("IsConnectivity(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("delete x: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound not recognised")
	}
	if IsNotFound(ErrUnavailable) {
		t.Error("ErrUnavailable reported as not found")
	}
}

func TestRecordToItem(t *testing.T) {
	r := Record{ID: "srv-1"}
	r.Title = "t"
	r.ParentID = "wrong"

	it := r.ToItem("list-1")
	if it.ParentID != "list-1" {
		t.Errorf("ParentID = %q, want list-1", it.ParentID)
	}
	if it.State != "synced" {
		t.Errorf("State = %q, want synced", it.State)
	}
	if it.Status != "todo" || it.Priority != "medium" || it.Tags == nil {
		t.Errorf("defaults not applied: %+v", it.Fields)
	}
}
