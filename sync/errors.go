package sync

import (
	"errors"

	"github.com/eth2028/eth2028/trie"
)

// Sync errors. BadNode, AlreadyProcessed and StorePutFailure originate
// in trie.Scheduler and are re-exported here (via errors.Is) so callers
// of this package never need to import trie directly for error checks.
var (
	// ErrCancelled is returned by any suspending operation once the
	// Syncer's context is done.
	ErrCancelled = errors.New("sync: cancelled")
	// ErrNoPeers reports that no peer is registered. No function in this
	// package returns it: PickIdle blocks cooperatively until a peer is
	// idle instead of failing.
	ErrNoPeers = errors.New("sync: no peers registered")

	ErrBadNode          = trie.ErrBadNode
	ErrAlreadyProcessed = trie.ErrAlreadyProcessed
	ErrStorePutFailure  = trie.ErrStorePutFailure
)
