// Package domain defines the core domain models for LexSync: resource
// keys, translation entries, the history ledger, snapshot records and the
// structured error scheme shared by every layer above storage.
package domain
