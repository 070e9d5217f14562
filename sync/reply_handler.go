// reply_handler.go drains inbound peer messages, hashes node blobs off
// the hot intake path via the worker pool, and feeds them into the
// scheduler, which is itself the final arbiter of whether a given hash
// was actually requested.
package sync

import (
	"context"
	"errors"

	"github.com/eth2028/eth2028/log"
	"github.com/eth2028/eth2028/metrics"
	"github.com/eth2028/eth2028/trie"
)

// BadNodeHook, if set, is notified whenever a delivered blob fails to
// decode once handed to the scheduler, so a caller can track or
// penalize the offending peer. It is never required for correctness: a
// bad node is simply dropped and its hash stays pending for a future
// delivery from another peer.
type BadNodeHook func(peer Peer, hash trie.NodeData, err error)

// ReplyHandler consumes a PeerPool's inbound message stream and applies
// NodeData replies to a Scheduler.
type ReplyHandler struct {
	pool      PeerPool
	registry  *PeerRegistry
	inflight  *InflightTable
	scheduler *trie.Scheduler
	workers   *HashWorkerPool
	logger    *log.Logger

	// BadNode is invoked for each blob the scheduler rejects as
	// malformed.
	BadNode BadNodeHook

	// processed counts every node delivery handed to the scheduler, one
	// increment per attempt regardless of outcome (success, benign
	// duplicate, or rejection) — mirroring the per-attempt counter the
	// progress reporter surfaces as "nodes processed."
	processed *metrics.Counter
}

// NewReplyHandler wires a ReplyHandler over the given collaborators.
func NewReplyHandler(pool PeerPool, registry *PeerRegistry, inflight *InflightTable, scheduler *trie.Scheduler, workers *HashWorkerPool, logger *log.Logger) *ReplyHandler {
	return &ReplyHandler{
		pool:      pool,
		registry:  registry,
		inflight:  inflight,
		scheduler: scheduler,
		workers:   workers,
		logger:    logger,
		processed: metrics.NewCounter("sync_nodes_processed_total"),
	}
}

// Processed returns the running count of node deliveries attempted
// (including duplicates and rejected blobs), for the progress reporter.
func (h *ReplyHandler) Processed() int64 { return h.processed.Value() }

// Run drains the inbound message channel until it closes or ctx is
// cancelled. Each message is dispatched to its own goroutine so that
// hashing one peer's reply never blocks intake of the next.
func (h *ReplyHandler) Run(ctx context.Context) error {
	ch := h.pool.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			go h.handle(ctx, msg)
		}
	}
}

func (h *ReplyHandler) handle(ctx context.Context, msg InboundMessage) {
	// A reply — even a late one the timeout sweeper already gave up on
	// — frees its peer immediately, since the peer plainly is no longer
	// busy servicing it.
	h.registry.MarkIdle(msg.Peer.ID())

	if msg.Kind != CommandNodeData {
		h.logger.Debug("ignoring non-NodeData message", "peer", msg.Peer.ID(), "kind", msg.Kind)
		return
	}
	if len(msg.Payload) == 0 {
		return
	}

	hashed, err := h.workers.HashAll(ctx, msg.Payload)
	if err != nil {
		return
	}

	for _, blob := range hashed {
		h.inflight.Clear(blob.Hash)
		h.processed.Inc()
		if err := h.scheduler.ProcessOne(blob.Hash, blob.Data); err != nil {
			if errors.Is(err, trie.ErrAlreadyProcessed) {
				continue
			}
			h.logger.Warn("rejected node data", "peer", msg.Peer.ID(), "hash", blob.Hash, "err", err)
			if h.BadNode != nil {
				h.BadNode(msg.Peer, trie.NodeData{Hash: blob.Hash, Data: blob.Data}, err)
			}
		}
	}
}
