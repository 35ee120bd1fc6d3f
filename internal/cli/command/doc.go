// Package command provides CLI command definitions for lexsync.
//
// The CLI operates directly on a local data directory and is meant for
// operators and offline tooling: importing translation batches,
// exporting project state, inspecting the change ledger and managing
// snapshots.
//
//   - root.go: application setup and global flags
//   - env.go: storage and service wiring shared by all commands
//   - push.go: batch import of translation changes
//   - pull.go: read model export with incremental filtering
//   - resolve.go: conflict resolution
//   - history.go: change ledger inspection and revert
//   - snapshot.go: snapshot lifecycle management
package command
