// Package schema defines the record model shared by the local store, the
// remote clients and the reconciliation engine.
//
// # Overview
//
// Lists and tasks are both stored as an Item. An Item carries domain fields
// (title, status, tags, ...) and provenance: the record's sync state relative
// to the remote store.
//
//	{
//	  "id": "offline_1736494589123_3f9c1a2b",
//	  "parentId": "list-42",
//	  "title": "Buy milk",
//	  "status": "todo",
//	  "priority": "medium",
//	  "tags": [],
//	  "createdAt": "2026-01-10T07:36:29Z",
//	  "syncState": "pending_create",
//	  "syncFailed": false
//	}
//
// # Sync states
//
// Provenance is an explicit tagged variant rather than a set of booleans:
//
//   - Synced        - the local record mirrors the remote one
//   - PendingCreate - created locally, remote has never seen it (locally-minted id)
//   - PendingUpdate - known remotely, edited locally since the last push
//   - PendingDelete - deleted locally, remote delete not yet confirmed
//
// SyncFailed is independent of the state: a Synced record may carry it after
// a later failed push, and the sweeper retries it.
//
// # Ids
//
// Server-assigned ids are opaque. Locally-minted ids carry the fixed
// LocalIDPrefix and are replaced by the remote id once the record is pushed.
package schema
