// timeout_sweeper.go periodically frees peers and re-queues hashes
// whose reply never arrived within ReplyTimeout.
package sync

import (
	"context"
	"time"

	"github.com/eth2028/eth2028/log"
	"github.com/eth2028/eth2028/metrics"
	"github.com/eth2028/eth2028/trie"
)

// TimeoutSweeper watches the in-flight table and reschedules anything
// that has gone stale, sleeping adaptively between sweeps rather than
// polling on a fixed tick.
type TimeoutSweeper struct {
	registry  *PeerRegistry
	inflight  *InflightTable
	scheduler *trie.Scheduler
	timeout   time.Duration
	logger    *log.Logger

	timeouts *metrics.Counter
}

// NewTimeoutSweeper wires a TimeoutSweeper over the given collaborators.
func NewTimeoutSweeper(registry *PeerRegistry, inflight *InflightTable, scheduler *trie.Scheduler, timeout time.Duration, logger *log.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		registry:  registry,
		inflight:  inflight,
		scheduler: scheduler,
		timeout:   timeout,
		logger:    logger,
		timeouts:  metrics.NewCounter("sync_timeouts_total"),
	}
}

// Timeouts returns the running count of rescheduled (timed out) hashes,
// surfaced by the progress reporter.
func (t *TimeoutSweeper) Timeouts() int64 { return t.timeouts.Value() }

// Run sweeps stale in-flight requests and peer-busy markers until ctx is
// cancelled. Between sweeps it sleeps until the oldest in-flight entry
// would next go stale, rather than on a fixed interval; with nothing in
// flight it wakes once per timeout.
func (t *TimeoutSweeper) Run(ctx context.Context) error {
	for {
		t.sweepOnce()

		sleep := t.timeout
		if min, ok := t.inflight.MinTimestamp(); ok {
			if remaining := time.Until(min.Add(t.timeout)); remaining > 0 {
				sleep = remaining
			} else {
				sleep = 0
			}
		}
		if sleep <= 0 {
			sleep = time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrCancelled
		case <-timer.C:
		}
	}
}

func (t *TimeoutSweeper) sweepOnce() {
	now := time.Now()

	if freed := t.registry.StaleBusy(t.timeout, now); len(freed) > 0 {
		t.logger.Debug("freed stale busy peers", "count", len(freed))
	}

	stale := t.inflight.Stale(t.timeout, now)
	for _, hash := range stale {
		t.scheduler.Reschedule(hash)
		t.inflight.Clear(hash)
		t.timeouts.Inc()
		t.logger.Debug("rescheduled timed out request", "hash", hash)
	}
}
