// peer_registry.go tracks which peers currently hold an outstanding
// request (the PeerBusyTable of the design) and lets callers pick an
// idle peer, blocking cooperatively until one frees up.
package sync

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/rand"
)

// PeerRegistry is the subscribed-peer set plus busy bookkeeping.
type PeerRegistry struct {
	mu      sync.Mutex
	peers   map[string]Peer
	busy    mapset.Set[string]
	since   map[string]time.Time
	waiters chan struct{} // closed and replaced whenever a peer becomes idle

	rnd *rand.Rand
}

// NewPeerRegistry creates an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers:   make(map[string]Peer),
		busy:    mapset.NewSet[string](),
		since:   make(map[string]time.Time),
		waiters: make(chan struct{}),
		rnd:     rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
}

// Subscribe registers a peer as available for requests.
func (r *PeerRegistry) Subscribe(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
	r.wakeLocked()
}

// Unsubscribe removes a peer, e.g. on disconnect.
func (r *PeerRegistry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	r.busy.Remove(id)
	delete(r.since, id)
}

// IdlePeers returns the subscribed peers minus the busy ones. Order is
// unspecified.
func (r *PeerRegistry) IdlePeers() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idleLocked()
}

func (r *PeerRegistry) idleLocked() []Peer {
	out := make([]Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if !r.busy.Contains(id) {
			out = append(out, p)
		}
	}
	return out
}

// PickIdle blocks cooperatively until at least one peer is idle, then
// returns a uniformly-random choice among them. It never fails except
// on context cancellation — spec §4.3 treats "no idle peer" as a wait
// condition, not an error.
func (r *PeerRegistry) PickIdle(ctx context.Context) (Peer, error) {
	for {
		r.mu.Lock()
		idle := r.idleLocked()
		wait := r.waiters
		r.mu.Unlock()

		if len(idle) > 0 {
			return idle[r.rnd.Intn(len(idle))], nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		case <-wait:
		}
	}
}

// MarkBusy records that a peer has just been dispatched a batch.
func (r *PeerRegistry) MarkBusy(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy.Add(id)
	r.since[id] = at
}

// MarkIdle clears a peer's busy marker, e.g. once its reply arrives.
// It is safe to call for a peer that is not currently marked busy (a
// late reply after a timeout sweep already cleared it).
func (r *PeerRegistry) MarkIdle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.busy.Contains(id) {
		return
	}
	r.busy.Remove(id)
	delete(r.since, id)
	r.wakeLocked()
}

// StaleBusy returns the ids of peers whose busy marker is older than
// maxAge, clearing their busy state as it does — called by the timeout
// sweeper to free up peers whose request apparently vanished.
func (r *PeerRegistry) StaleBusy(maxAge time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, t := range r.since {
		if now.Sub(t) >= maxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.busy.Remove(id)
		delete(r.since, id)
	}
	if len(stale) > 0 {
		r.wakeLocked()
	}
	return stale
}

// wakeLocked broadcasts to any goroutine blocked in PickIdle. Must be
// called with r.mu held.
func (r *PeerRegistry) wakeLocked() {
	close(r.waiters)
	r.waiters = make(chan struct{})
}
