package sync

import (
	"sync"
	"time"

	"github.com/eth2028/eth2028/core/types"
)

// InflightTable records when each hash currently being fetched was last
// sent on the wire. Duplicates (the same hash sent to two peers, or
// re-sent after a timeout) are tolerated: a later MarkSent simply
// overwrites the timestamp, and Clear is idempotent.
type InflightTable struct {
	mu     sync.Mutex
	sentAt map[types.Hash]time.Time
}

// NewInflightTable creates an empty table.
func NewInflightTable() *InflightTable {
	return &InflightTable{sentAt: make(map[types.Hash]time.Time)}
}

// MarkSent records that hash was just dispatched.
func (t *InflightTable) MarkSent(hash types.Hash, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentAt[hash] = at
}

// Clear removes hash from the table. Absence is not an error: the
// timeout sweeper may already have cleared it.
func (t *InflightTable) Clear(hash types.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sentAt, hash)
}

// Len returns the number of currently in-flight hashes.
func (t *InflightTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sentAt)
}

// Stale returns every hash sent at or before now-maxAge, without
// removing them — the caller (the timeout sweeper) removes entries
// only once it has successfully re-dispatched them.
func (t *InflightTable) Stale(maxAge time.Duration, now time.Time) []types.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.Hash
	for h, at := range t.sentAt {
		if now.Sub(at) >= maxAge {
			out = append(out, h)
		}
	}
	return out
}

// MinTimestamp returns the oldest send time among currently in-flight
// hashes, and whether the table is non-empty.
func (t *InflightTable) MinTimestamp() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var min time.Time
	found := false
	for _, at := range t.sentAt {
		if !found || at.Before(min) {
			min = at
			found = true
		}
	}
	return min, found
}
