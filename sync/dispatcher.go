// dispatcher.go batches pending hashes and hands them to idle peers,
// recording per-hash request timestamps so the timeout sweeper can
// later detect a stalled request.
package sync

import (
	"context"
	"time"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/log"
)

// RequestDispatcher sends batches of requested hashes to idle peers.
type RequestDispatcher struct {
	registry  *PeerRegistry
	inflight  *InflightTable
	batchSize int
	logger    *log.Logger
}

// NewRequestDispatcher creates a dispatcher that never sends more than
// batchSize hashes in a single request.
func NewRequestDispatcher(registry *PeerRegistry, inflight *InflightTable, batchSize int, logger *log.Logger) *RequestDispatcher {
	if batchSize <= 0 {
		batchSize = DefaultMaxStateFetch
	}
	return &RequestDispatcher{registry: registry, inflight: inflight, batchSize: batchSize, logger: logger}
}

// Request partitions hashes into batches of at most batchSize, and for
// each batch: waits for an idle peer, records in-flight timestamps,
// sends the batch, and marks the peer busy. It blocks until every
// batch has been handed to a peer, or ctx is cancelled.
func (d *RequestDispatcher) Request(ctx context.Context, hashes []types.Hash) error {
	for start := 0; start < len(hashes); start += d.batchSize {
		end := start + d.batchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		if err := d.sendBatch(ctx, hashes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *RequestDispatcher) sendBatch(ctx context.Context, batch []types.Hash) error {
	peer, err := d.registry.PickIdle(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, h := range batch {
		d.inflight.MarkSent(h, now)
	}
	d.registry.MarkBusy(peer.ID(), now)

	if err := peer.SendGetNodeData(batch); err != nil {
		d.logger.Warn("send GetNodeData failed", "peer", peer.ID(), "count", len(batch), "err", err)
		// Leave the in-flight markers in place; once they go stale the
		// timeout sweeper reschedules them, and they are sent again to
		// whichever peer is picked as idle then.
		return nil
	}
	return nil
}
