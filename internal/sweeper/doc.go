// Package sweeper converges the local store with the remote store.
//
// Overview
//
// Every engine mutation that could not reach the remote store leaves a
// record in a pending state. A sweep walks those records and replays the
// missing remote call for each one:
//
//	Local store (pending records)
//	     ├── lists  (swept first, so new list ids exist remotely)
//	     └── tasks
//	                 ↓
//	              Sweeper ──→ remote.Client
//	                 ↓
//	     records stored as Synced, or left with syncFailed
//
// One action is chosen per record:
//
//	pending_delete              remote delete, then local delete
//	pending_update / syncFailed remote update, then stored as synced
//	pending_create              remote create, then re-keyed to the remote id
//
// A failure on one record marks it syncFailed and the sweep moves on. The
// sweeper is the only retry mechanism: engine calls never retry on their own.
package sweeper
