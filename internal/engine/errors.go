package engine

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/schema"
)

// Errors returned by engine operations. Check them with errors.Is:
//
//	if errors.Is(err, engine.ErrLocalPersistence) {
//	    // the on-device store failed; observers were resynced
//	}
var (
	// ErrConnectivity marks a remote failure caused by the network or the
	// time budget. The engine always recovers from it by falling back to
	// the local store, so callers only see it in logs and sync results.
	ErrConnectivity = errors.New("remote store unreachable")

	// ErrRemote marks an error returned by a reachable remote store.
	ErrRemote = errors.New("remote store error")

	// ErrLocalPersistence marks a failure of the on-device store. It is
	// always surfaced.
	ErrLocalPersistence = errors.New("local store failure")

	// ErrValidation marks a rejected payload. Nothing was written.
	ErrValidation = errors.New("invalid record")
)

// FetchError is returned by FetchAll when a reachable remote store fails.
// Cached holds the last-known-good local view so callers can keep showing it.
type FetchError struct {
	Collection schema.Collection
	ParentID   string
	Cached     []schema.Item
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s of %s: %v", e.Collection, e.ParentID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify tags a remote error as ErrConnectivity or ErrRemote.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if remote.IsConnectivity(err) {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	return fmt.Errorf("%w: %w", ErrRemote, err)
}

// IsRecoverable reports whether a later sweep may succeed where err failed.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

func localErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLocalPersistence, op, err)
}

func validationErr(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
