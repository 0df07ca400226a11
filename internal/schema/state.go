package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncState is the provenance of a record relative to the remote store.
type SyncState string

const (
	StateSynced        SyncState = "synced"
	StatePendingCreate SyncState = "pending_create"
	StatePendingUpdate SyncState = "pending_update"
	StatePendingDelete SyncState = "pending_delete"
)

func (s SyncState) IsValid() bool {
	switch s {
	case StateSynced, StatePendingCreate, StatePendingUpdate, StatePendingDelete:
		return true
	}
	return false
}

// String returns a short human-readable form.
func (s SyncState) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StatePendingCreate:
		return "pending create"
	case StatePendingUpdate:
		return "pending update"
	case StatePendingDelete:
		return "pending delete"
	default:
		return "unknown"
	}
}

// LocalIDPrefix marks ids minted on this device before a remote id exists.
const LocalIDPrefix = "offline_"

// NewLocalID mints a locally-unique id: offline_<unix-millis>_<random>.
func NewLocalID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d_%s", LocalIDPrefix, now.UnixMilli(), random)
}

// IsLocalID reports whether id was minted locally.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// PendingStateFor returns the pending state an edited record should carry:
// records the remote has never seen stay PendingCreate.
func PendingStateFor(id string) SyncState {
	if IsLocalID(id) {
		return StatePendingCreate
	}
	return StatePendingUpdate
}

// CheckProvenance rejects state/id combinations the sweeper cannot resolve.
func (it Item) CheckProvenance() error {
	if !it.State.IsValid() {
		return fmt.Errorf("invalid sync state %q", it.State)
	}
	local := IsLocalID(it.ID)
	if local && it.State != StatePendingCreate {
		return fmt.Errorf("locally-minted id %s must be %s, got %s", it.ID, StatePendingCreate, it.State)
	}
	if !local && it.State == StatePendingCreate {
		return fmt.Errorf("server id %s cannot be %s", it.ID, StatePendingCreate)
	}
	return nil
}
