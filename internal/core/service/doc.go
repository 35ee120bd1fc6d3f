// Package service provides the domain services for LexSync.
//
// SyncService applies client pushes and produces pull deltas with
// optimistic-concurrency conflict detection, HistoryService maintains the
// revertible change ledger, and SnapshotService captures and restores
// point-in-time project state. Storage, blobs, authorization and plan
// limits are consumed through ports defined in this package.
package service
