// sync_scheduler.go implements the trie-traversal scheduler that drives
// state synchronization: it tracks which nodes are known to be needed,
// expands the request frontier as nodes arrive and are decoded, verifies
// content-addressing, and commits bottom-up once every child of a node
// has landed in the store.
//
// The scheduler is the single-threaded logical heart of the sync: callers
// (the reply handler) may run hash verification on a worker pool, but
// Process itself is a short, synchronous state transition protected by a
// mutex so it can be driven safely from multiple goroutines feeding
// replies from different peers concurrently.
package trie

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/eth2028/eth2028/core/rawdb"
	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/crypto"
)

// Scheduler errors.
var (
	// ErrBadNode is returned when a received blob does not hash to the
	// key that was requested, or fails structural decoding.
	ErrBadNode = errors.New("trie sync: bad node")
	// ErrAlreadyProcessed is returned for a hash that is unknown to the
	// scheduler (already committed, never requested, or already queued
	// with data). Callers treat it as benign and swallow it.
	ErrAlreadyProcessed = errors.New("trie sync: already processed")
	// ErrStorePutFailure wraps a fatal failure writing to the node store.
	ErrStorePutFailure = errors.New("trie sync: store put failed")
)

// subTrieDepth is the depth assigned to storage-trie and code requests
// scheduled from an account leaf. It only needs to rank below any
// unvisited account-trie request (the account trie is at most 64 nibbles
// deep), so that the scheduler finishes the breadth of the account trie
// before chasing deep per-account subtries. See DESIGN.md for the
// rationale recorded against the spec's open question on this value.
const subTrieDepth = 64

// LeafHook is invoked whenever the scheduler decodes a leaf value (in
// ProcessOne, before that node commits) in a subtrie with a callback
// attached. It may schedule further
// requests (e.g. an account's storage root and code hash) parented on
// the leaf. Implementations must not call back into the Scheduler's
// exported, locking methods — they run with the scheduler's internal
// lock already held.
type LeafHook func(value []byte, leaf *SyncRequest, sched *Scheduler)

// SyncRequest tracks a single trie node (or raw code blob) that the
// scheduler knows is needed but has not yet committed to the store.
type SyncRequest struct {
	// Hash is the expected keccak256 of the node's encoded bytes.
	Hash types.Hash
	// Depth is the distance from the sync root, used for prioritization.
	Depth uint32
	// Parents holds the hashes of parent requests whose child list
	// includes this request. A node commits only after all of its own
	// children have committed, and a commit here recursively attempts
	// to commit every parent whose last dependency this was.
	Parents map[types.Hash]struct{}
	// Dependencies counts not-yet-committed children.
	Dependencies uint32
	// Data holds the node's bytes once received, before dependencies
	// necessarily clear.
	Data []byte
	// IsRaw marks contract code: stored verbatim, never decoded.
	IsRaw bool
	// LeafCallback fires when this request is discovered to be a leaf
	// node (or, for IsRaw requests, never — raw blobs are not decoded).
	LeafCallback LeafHook

	seq   uint64 // insertion sequence, for FIFO tie-break within a depth
	index int    // heap index, maintained by container/heap
}

// Scheduler is the SyncScheduler of the design: it owns the set of
// pending requests, the priority queue over them, and the running commit
// count, and drives commits into a NodeStore.
type Scheduler struct {
	mu sync.Mutex

	store rawdb.KVStore

	requests map[types.Hash]*SyncRequest
	queue    requestQueue

	committedCount uint64
	nextSeq        uint64
}

// NewScheduler creates a Scheduler that will sync the trie rooted at
// root into store, invoking rootLeafCallback (if non-nil) on every leaf
// discovered under the root's subtrie.
//
// If root is the well-known empty trie root, there is nothing to fetch:
// the scheduler records the commit immediately (writing the canonical
// empty-node encoding) and starts with no pending work. This pins the
// spec's open question on whether the empty-root blob is persisted: it
// is, so HasPending and Get behave uniformly whether or not the caller
// ever dealt with an empty trie specially.
func NewScheduler(root types.Hash, store rawdb.KVStore, rootLeafCallback LeafHook) (*Scheduler, error) {
	s := &Scheduler{
		store:    store,
		requests: make(map[types.Hash]*SyncRequest),
	}
	if root == types.EmptyRootHash {
		if err := store.Put(root.Bytes(), emptyNodeRLP); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorePutFailure, err)
		}
		s.committedCount = 1
		return s, nil
	}
	req := &SyncRequest{Hash: root, Depth: 0, LeafCallback: rootLeafCallback, seq: s.nextSeq}
	s.nextSeq++
	s.requests[root] = req
	heap.Push(&s.queue, req)
	return s, nil
}

// emptyNodeRLP is the RLP encoding of the empty string, the canonical
// byte representation whose keccak256 is EmptyRootHash.
var emptyNodeRLP = []byte{0x80}

// HasPending reports whether any request is still outstanding.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests) > 0
}

// CommittedCount returns the number of distinct hashes committed so far.
func (s *Scheduler) CommittedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committedCount
}

// PendingCount returns the number of requests not yet committed
// (queued or in-flight — the scheduler itself has no notion of
// in-flight; that bookkeeping lives in the dispatcher).
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// QueuedCount returns the number of requests currently in the queue:
// those not yet popped by NextBatch, plus any put back by Reschedule
// after a timeout.
func (s *Scheduler) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NextBatch pops up to n requests from the priority queue in
// (depth ascending, FIFO) order. Popped requests remain in the pending
// set — they only return to the queue if timed out and rescheduled.
func (s *Scheduler) NextBatch(n int) []*SyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || len(s.queue) == 0 {
		return nil
	}
	out := make([]*SyncRequest, 0, n)
	for len(out) < n && len(s.queue) > 0 {
		req := heap.Pop(&s.queue).(*SyncRequest)
		out = append(out, req)
	}
	return out
}

// Reschedule returns a hash that timed out in flight back onto the
// queue, so it is handed out again by a future NextBatch. It is a no-op
// if the hash is no longer pending (it may have committed in the
// meantime via another peer's reply).
func (s *Scheduler) Reschedule(hash types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[hash]
	if !ok {
		return
	}
	heap.Push(&s.queue, req)
}

// NodeData is a single received (hash, blob) pair handed to Process.
type NodeData struct {
	Hash types.Hash
	Data []byte
}

// Process verifies, decodes, and accounts for one or more received
// node blobs, in order, via ProcessOne. An item that yields
// ErrAlreadyProcessed is skipped as benign. The first other error
// (BadNode or StorePutFailure) is returned at once: the items before it
// have been applied, and the items after it are not processed. Callers
// that want per-item results should call ProcessOne directly.
func (s *Scheduler) Process(items []NodeData) error {
	for _, it := range items {
		err := s.ProcessOne(it.Hash, it.Data)
		if err == nil || errors.Is(err, ErrAlreadyProcessed) {
			continue
		}
		return err
	}
	return nil
}

// ProcessOne verifies and accounts for a single received node blob. It
// returns ErrBadNode if the bytes do not hash to hash, ErrAlreadyProcessed
// if hash is not an outstanding request (or has already been given
// data), and ErrStorePutFailure if committing to the backing store
// fails.
func (s *Scheduler) ProcessOne(hash types.Hash, data []byte) error {
	computed := crypto.Keccak256Hash(data)
	if computed != hash {
		return fmt.Errorf("%w: requested %s got %s", ErrBadNode, hash, computed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[hash]
	if !ok || req.Data != nil {
		return ErrAlreadyProcessed
	}
	req.Data = data

	if req.IsRaw {
		return s.commitLocked(req)
	}

	n, err := decodeNode(hashNode(hash.Bytes()), data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadNode, err)
	}
	s.expandLocked(req, n, req.Depth)

	if req.Dependencies == 0 {
		return s.commitLocked(req)
	}
	return nil
}

// expandLocked walks a decoded node (and recursively, any embedded
// children, which require no separate fetch), linking hash-referenced
// children as new or merged SyncRequests under req and invoking req's
// leaf callback on every value discovered, whether at req's own top
// level or nested inside an embedded child.
func (s *Scheduler) expandLocked(req *SyncRequest, n node, childDepth uint32) {
	switch nt := n.(type) {
	case *shortNode:
		switch child := nt.Val.(type) {
		case hashNode:
			s.linkChildLocked(req, types.BytesToHash(child), childDepth+1, false, req.LeafCallback)
		case valueNode:
			if req.LeafCallback != nil {
				req.LeafCallback(child, req, s)
			}
		case nil:
		default:
			s.expandLocked(req, child, childDepth+1)
		}
	case *fullNode:
		for i := 0; i < 16; i++ {
			switch child := nt.Children[i].(type) {
			case hashNode:
				s.linkChildLocked(req, types.BytesToHash(child), childDepth+1, false, req.LeafCallback)
			case nil:
			default:
				s.expandLocked(req, child, childDepth+1)
			}
		}
		if v, ok := nt.Children[16].(valueNode); ok && v != nil && req.LeafCallback != nil {
			req.LeafCallback(v, req, s)
		}
	}
}

// linkChildLocked creates or merges a child request of parent for the
// given hash. Callers, including LeafHook implementations, must already
// hold s.mu (LeafHooks run from within ProcessOne).
func (s *Scheduler) linkChildLocked(parent *SyncRequest, hash types.Hash, depth uint32, isRaw bool, leafCB LeafHook) {
	if hash.IsZero() {
		return
	}
	if hash == types.EmptyRootHash || hash == types.EmptyCodeHash {
		return
	}

	if existing, ok := s.requests[hash]; ok {
		if parent == nil {
			return
		}
		if existing.Parents == nil {
			existing.Parents = make(map[types.Hash]struct{})
		}
		if _, dup := existing.Parents[parent.Hash]; dup {
			return
		}
		existing.Parents[parent.Hash] = struct{}{}
		parent.Dependencies++
		return
	}

	if has, _ := s.store.Has(hash.Bytes()); has {
		return
	}

	req := &SyncRequest{
		Hash:         hash,
		Depth:        depth,
		IsRaw:        isRaw,
		LeafCallback: leafCB,
		seq:          s.nextSeq,
	}
	s.nextSeq++
	if parent != nil {
		req.Parents = map[types.Hash]struct{}{parent.Hash: {}}
		parent.Dependencies++
	}
	s.requests[hash] = req
	heap.Push(&s.queue, req)
}

// ScheduleSubtrie schedules a hash discovered by a LeafHook (typically
// an account's storage root or code hash) as a child of leaf, at a
// caller-chosen depth and rawness, with its own (usually nil) leaf
// callback. It must only be called from within a LeafHook.
func (s *Scheduler) ScheduleSubtrie(leaf *SyncRequest, hash types.Hash, depth uint32, isRaw bool, leafCB LeafHook) {
	s.linkChildLocked(leaf, hash, depth, isRaw, leafCB)
}

// commitLocked writes req's data to the store, counts it, removes it
// from the pending set, and recursively commits any parent whose last
// outstanding dependency this was. Commit order is therefore always
// bottom-up: a parent is never written before every child is.
func (s *Scheduler) commitLocked(req *SyncRequest) error {
	if err := s.store.Put(req.Hash.Bytes(), req.Data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorePutFailure, err)
	}
	s.committedCount++
	delete(s.requests, req.Hash)

	for parentHash := range req.Parents {
		parent, ok := s.requests[parentHash]
		if !ok {
			continue
		}
		parent.Dependencies--
		if parent.Dependencies == 0 && parent.Data != nil {
			if err := s.commitLocked(parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// AccountLeafHook decodes leaf bytes as an account record and schedules
// the account's storage root and code hash as subtries of the leaf, at
// subTrieDepth and with no further leaf callback (storage leaves and
// code blobs are not themselves account records).
func AccountLeafHook(value []byte, leaf *SyncRequest, sched *Scheduler) {
	acct, err := types.DecodeAccountBytes(value)
	if err != nil {
		// A malformed account leaf cannot be expanded further; the leaf
		// node itself has already passed hash verification, so this is
		// not a BadNode — it simply has no storage/code to chase.
		return
	}
	if acct.Root != types.EmptyRootHash && !acct.Root.IsZero() {
		sched.ScheduleSubtrie(leaf, acct.Root, subTrieDepth, false, nil)
	}
	codeHash := types.BytesToHash(acct.CodeHash)
	if codeHash != types.EmptyCodeHash && !codeHash.IsZero() {
		sched.ScheduleSubtrie(leaf, codeHash, subTrieDepth, true, nil)
	}
}
