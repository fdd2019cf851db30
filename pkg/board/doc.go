// Package board implements the collaborative note synchronization engine:
// it keeps a set of freely positioned, richly formatted notes consistent
// between one session, a local persistent cache, and the shared multi-user
// backend store.
//
// # Architecture
//
// A [Session] is an explicit per-board object rather than a process-wide
// singleton, so multiple independent boards (and tests) can coexist in one
// process. It owns:
//
//   - the note store: the authoritative in-memory collection for the session
//   - the dirty tracker: the set of note IDs with unsynced local mutations
//   - the sync scheduler: a debounced, single-flight batch-push loop that
//     drains the dirty tracker into one bulk upsert
//   - the conflict resolver: interprets per-note upsert outcomes and
//     rehydrates conflicting notes from a fresh server read
//   - the share ACL cache: per-note sharing grants and the directory of
//     sharable targets
//   - the local cache: the last known collection, persisted as a bootstrap
//     source for when the backend is unreachable or empty
//
// # Synchronization protocol
//
// Every local mutation updates the note store, marks the note dirty, and
// resets a debounce timer. When the timer fires, all dirty notes are pushed
// in a single bulk upsert; at most one upsert is in flight at a time, and
// triggers arriving during flight are satisfied by the next cycle. The
// backend answers per entry with ok, conflict, or rejected:
//
//   - ok: the note adopts the returned remote ID and version
//   - conflict: another writer committed first; the note is rehydrated from
//     a fresh server read and the local draft is discarded
//     (last-committed-wins at note granularity, no field merging)
//   - rejected: surfaced through the session's event callbacks, not retried
//
// A network failure leaves the dirty set untouched, so the next debounce
// cycle retries the same notes; there is no explicit backoff.
//
// # Concurrency model
//
// All session state is guarded by one mutex; the debounce timer and flush
// run on background goroutines that re-acquire it. Reads (full refreshes
// and per-note soft refreshes) are gated by a monotonically increasing
// request sequence so a stale response can never overwrite newer state, and
// hydration skips any note that is currently dirty. Event and editor
// callbacks are always invoked without the session lock held.
package board
