// progress_reporter.go periodically logs synchronization progress: how
// many nodes have been processed and committed, the average throughput
// since the sync started, and the size of the in-flight and queued work.
package sync

import (
	"context"
	"time"

	"github.com/eth2028/eth2028/log"
	"github.com/eth2028/eth2028/trie"
)

// ProgressReporter logs a summary line every ReportInterval until
// cancelled.
type ProgressReporter struct {
	scheduler *trie.Scheduler
	inflight  *InflightTable
	sweeper   *TimeoutSweeper
	replies   *ReplyHandler
	interval  time.Duration
	logger    *log.Logger
}

// NewProgressReporter wires a ProgressReporter over the given
// collaborators.
func NewProgressReporter(scheduler *trie.Scheduler, inflight *InflightTable, sweeper *TimeoutSweeper, replies *ReplyHandler, interval time.Duration, logger *log.Logger) *ProgressReporter {
	return &ProgressReporter{
		scheduler: scheduler,
		inflight:  inflight,
		sweeper:   sweeper,
		replies:   replies,
		interval:  interval,
		logger:    logger,
	}
}

// Run logs a progress line every interval until ctx is cancelled. The
// processed-per-second figure is an average over the entire run (total
// processed divided by total elapsed time), not a per-tick rate.
func (r *ProgressReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case now := <-ticker.C:
			processed := r.replies.Processed()
			elapsed := now.Sub(start).Seconds()
			rate := float64(0)
			if elapsed > 0 {
				rate = float64(processed) / elapsed
			}
			r.logger.Info("sync progress",
				"processed", processed,
				"processed_per_sec_avg", rate,
				"committed", r.scheduler.CommittedCount(),
				"pending", r.scheduler.PendingCount(),
				"queued", r.scheduler.QueuedCount(),
				"in_flight", r.inflight.Len(),
				"timeouts", r.sweeper.Timeouts(),
			)
		}
	}
}
