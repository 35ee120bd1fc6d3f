// Package shortid generates short opaque identifiers for ledger and
// snapshot records.
//
// IDs are prefixed lowercase ULIDs: sortable by creation time, URL-safe
// and unambiguous about what kind of record they name (e.g.
// "lxh-01j3ck8z5d0q6v9w2x4y5z6a7b" for a history entry).
package shortid

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// HistoryPrefix marks history ledger entry ids.
	HistoryPrefix = "lxh-"

	// SnapshotPrefix marks snapshot record ids.
	SnapshotPrefix = "lxs-"

	ulidLen = 26
)

// Generator produces prefixed ids. The zero value is not usable; use New.
type Generator struct {
	now func() time.Time
}

// New creates a Generator using the given clock. A nil clock defaults to
// time.Now.
func New(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// History returns a new history entry id.
func (g *Generator) History() string {
	return HistoryPrefix + g.ulid()
}

// Snapshot returns a new snapshot record id.
func (g *Generator) Snapshot() string {
	return SnapshotPrefix + g.ulid()
}

func (g *Generator) ulid() string {
	id := ulid.MustNew(ulid.Timestamp(g.now()), rand.Reader)
	return strings.ToLower(id.String())
}

// Valid reports whether id carries the given prefix followed by a
// well-formed ULID.
func Valid(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	rest := id[len(prefix):]
	if len(rest) != ulidLen {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(rest))
	return err == nil
}
