// Package main provides the entry point for lexsync-cli.
//
// The CLI tool operates directly on a local LexSync data directory:
//
//   - Batch import of translation changes (push)
//   - Read model export with incremental filtering (pull)
//   - Conflict resolution (resolve)
//   - Change ledger inspection and revert (history)
//   - Snapshot lifecycle management (snapshot)
//
// Usage:
//
//	lexsync-cli --project 42 [command] [flags]
//	lexsync-cli -p 42 push --file batch.json
//	lexsync-cli -p 42 history list --output json
package main
