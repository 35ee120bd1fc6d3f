package service

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultLockStripes is the number of mutex stripes in a ProjectLocks.
const DefaultLockStripes = 128

// ProjectLocks serializes mutating operations per project.
//
// Two concurrent pushes to the same project could otherwise both read a
// pre-mutation snapshot of the same row, both pass their hash check, and
// lose one update. Stripes are picked by MurmurHash3 of the project id, so
// unrelated projects rarely contend.
type ProjectLocks struct {
	stripes []sync.Mutex
}

// NewProjectLocks creates a ProjectLocks with the given stripe count.
// A non-positive count falls back to DefaultLockStripes.
func NewProjectLocks(stripes int) *ProjectLocks {
	if stripes <= 0 {
		stripes = DefaultLockStripes
	}
	return &ProjectLocks{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for projectID and returns its unlock function.
func (l *ProjectLocks) Lock(projectID int64) func() {
	m := &l.stripes[l.stripe(projectID)]
	m.Lock()
	return m.Unlock
}

func (l *ProjectLocks) stripe(projectID int64) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(projectID))
	return murmur3.Sum32(buf[:]) % uint32(len(l.stripes))
}
