// Package cmap provides a concurrent map implementation for LexSync.
//
// This package implements a sharded concurrent map, used for
// per-project state where many projects are touched in parallel:
//
//   - Sharding: Configurable shard count for parallelism
//   - Fine-grained Locking: Per-shard RWMutex for minimal contention
//   - Iteration: Safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[int64, *projectData]()
//	m.Set(projectID, data)
//	val, ok := m.Get(projectID)
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
package cmap
