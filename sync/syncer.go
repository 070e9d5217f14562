// syncer.go is the top-level entry point: it wires a Scheduler, a peer
// pool, and the supporting goroutines (reply handling, timeout sweeping,
// progress reporting) into the main request-dispatch loop.
package sync

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/eth2028/eth2028/core/rawdb"
	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/log"
	"github.com/eth2028/eth2028/trie"
)

// Syncer drives a full state sync of the trie rooted at Root into
// Store, fetching missing nodes from Pool's peers.
type Syncer struct {
	scheduler *trie.Scheduler
	registry  *PeerRegistry
	inflight  *InflightTable
	dispatch  *RequestDispatcher
	replies   *ReplyHandler
	sweeper   *TimeoutSweeper
	reporter  *ProgressReporter
	cfg       *Config
	logger    *log.Logger
}

// NewSyncer constructs a Syncer for the account trie rooted at root.
// Account leaves discovered during the sync automatically schedule
// their storage tries and contract code via trie.AccountLeafHook.
func NewSyncer(root types.Hash, store rawdb.KVStore, pool PeerPool, cfg *Config, logger *log.Logger) (*Syncer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.Module("statesync")

	scheduler, err := trie.NewScheduler(root, store, trie.AccountLeafHook)
	if err != nil {
		return nil, err
	}

	registry := NewPeerRegistry()
	inflight := NewInflightTable()
	dispatch := NewRequestDispatcher(registry, inflight, cfg.MaxStateFetch, logger)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	workerPool := NewHashWorkerPool(workers)

	replies := NewReplyHandler(pool, registry, inflight, scheduler, workerPool, logger)
	sweeper := NewTimeoutSweeper(registry, inflight, scheduler, cfg.ReplyTimeout, logger)
	reporter := NewProgressReporter(scheduler, inflight, sweeper, replies, cfg.ReportInterval, logger)

	return &Syncer{
		scheduler: scheduler,
		registry:  registry,
		inflight:  inflight,
		dispatch:  dispatch,
		replies:   replies,
		sweeper:   sweeper,
		reporter:  reporter,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Subscribe registers a peer as a source of node data. Peers may join
// and leave at any point during Run.
func (s *Syncer) Subscribe(p Peer) { s.registry.Subscribe(p) }

// Unsubscribe removes a peer, e.g. on disconnect.
func (s *Syncer) Unsubscribe(id string) { s.registry.Unsubscribe(id) }

// CommittedCount returns the number of nodes committed to the store so
// far.
func (s *Syncer) CommittedCount() uint64 { return s.scheduler.CommittedCount() }

// Run drives the sync to completion: it starts the reply handler,
// timeout sweeper, and progress reporter as background goroutines, then
// runs the main dispatch loop until every reachable node has committed
// or ctx is cancelled. It returns the first error encountered by any
// component, or nil on clean completion.
func (s *Syncer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		firstErr error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() { firstErr = err })
		cancel()
	}

	wg.Add(3)
	go func() { defer wg.Done(); record(s.replies.Run(ctx)) }()
	go func() { defer wg.Done(); record(s.sweeper.Run(ctx)) }()
	go func() { defer wg.Done(); record(s.reporter.Run(ctx)) }()

	mainErr := s.mainLoop(ctx)
	cancel()
	wg.Wait()

	if mainErr != nil && !errors.Is(mainErr, context.Canceled) {
		return mainErr
	}
	if firstErr != nil && !errors.Is(firstErr, ErrCancelled) {
		return firstErr
	}
	return nil
}

// mainLoop implements the control-plane loop: pop the next batch of
// requested hashes and hand them to the dispatcher, backing off when
// the scheduler has pending work but nothing ready to request (every
// outstanding hash is already in flight).
func (s *Syncer) mainLoop(ctx context.Context) error {
	for s.scheduler.HasPending() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := s.scheduler.NextBatch(s.cfg.MaxStateFetch)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.IdleBackoff):
			}
			continue
		}

		hashes := make([]types.Hash, len(batch))
		for i, req := range batch {
			hashes[i] = req.Hash
		}
		if err := s.dispatch.Request(ctx, hashes); err != nil {
			return err
		}
	}
	return nil
}
