// Package daemon keeps the local store converging with the remote store in
// the background.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - Daemon: runs sweeps when connectivity returns and on a fixed interval
//   - OpLog: an append-only JSONL record of committed notifications
//
// # Sweep scheduling
//
// Every offline→online transition reported by the connectivity Notifier
// queues a sweep. Queued sweeps are debounced so a flapping link triggers one
// sweep, not one per transition:
//
//	transition(online) ─┐
//	Trigger()          ─┼─→ debounce ─→ sweeper.Sync
//	interval ticker    ─┘
//
// Transitions never mutate records; they only schedule sweeps.
//
// # Operation log
//
// The OpLog is a notify.Publisher that appends one JSON line per committed
// event. Each line carries a sequence number so readers can resume:
//
//	{"seq":12,"time":"2026-04-02T10:30:00Z","kind":"sync","result":{"synced":3,"failed":0}}
//
// ParseOpLog reads the lines back and EntriesSince selects the ones after a
// known sequence number.
package daemon
