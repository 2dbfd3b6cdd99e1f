// Package storage is the local storage engine for a remerge collection: a
// single-collection record database with overlay-over-mirror semantics,
// sync-status tagging, and vector-clock causality stamps.
//
// # Tables
//
//   - rec_local: the overlay; per-guid working copy of unsynced local state.
//     Tombstones are overlay rows with is_deleted=1 and a cleared payload;
//     local CRUD never removes overlay rows.
//   - rec_mirror: the last-known-synced copy, written only by the sync
//     engine. Local writes touch nothing there except is_overridden.
//   - remerge_schemas: append-mostly history of schema texts, keyed by
//     version.
//   - metadata: typed key/value pairs (collection name, schema versions,
//     client id, change counter, sync lockout marker).
//
// # Invariants
//
// The live record for a guid is the overlay row when one exists and is not
// tombstoned, else the mirror row when not overridden. Every write path that
// creates or clones an overlay row marks the mirror overridden in the same
// transaction. The global change counter is bumped exactly once per
// committed mutation, in the mutation's transaction, and each mutation
// stamps the row's vector clock with the new counter under the local client
// id.
//
// Conditions that can only arise from a corrupt database (negative counter,
// counter overflow, a row vanishing mid-transaction) are returned as typed
// CORRUPT errors; callers should treat the store instance as unusable after
// seeing one.
//
// # Concurrency
//
// Operations are synchronous and the connection is exclusive to the
// instance; callers needing cross-goroutine mutation must serialize
// externally. First-open setup is serialized per database file. Cooperative
// cancellation is available through NewInterruptHandle: each operation runs
// its statements on a cancellable context, so an interrupt aborts a
// statement already running in the driver, not just the next checkpoint.
package storage
