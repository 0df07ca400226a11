package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Common errors returned by remote clients.
//
//	if errors.Is(err, remote.ErrNotFound) {
//	    // already gone
//	}
var (
	// ErrUnavailable is returned when the remote cannot be reached.
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("remote record not found")

	// ErrRejected is returned when the remote refuses a well-formed request
	// (permissions, quota, schema).
	ErrRejected = errors.New("remote store rejected request")
)

// IsConnectivity reports whether err means the remote was unreachable or
// too slow, as opposed to answering with an error.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	// The remote answered; whatever the message says, it was reachable.
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound) {
		return false
	}

	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Some drivers flatten transport failures into plain strings.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unavailable", "network", "timeout", "connection refused", "no such host"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the record does not exist remotely.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
