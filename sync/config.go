package sync

import "time"

// Protocol- and scheduling-tuning constants, matching the defaults in
// the state synchronizer design.
const (
	// DefaultReplyTimeout is how long a sent hash waits for a reply
	// before the timeout sweeper re-queues it.
	DefaultReplyTimeout = 20 * time.Second

	// DefaultReportInterval is how often the progress reporter logs.
	DefaultReportInterval = 10 * time.Second

	// DefaultMaxStateFetch is the maximum number of hashes batched into
	// a single GetNodeData request.
	DefaultMaxStateFetch = 384

	// DefaultIdleBackoff is how long the main loop sleeps when the
	// scheduler has pending requests but none are queued (all
	// in-flight, awaiting replies).
	DefaultIdleBackoff = 500 * time.Millisecond
)

// Config tunes a Syncer and its helper goroutines.
type Config struct {
	// ReplyTimeout bounds how long an in-flight request is allowed to
	// go unanswered before it is re-dispatched.
	ReplyTimeout time.Duration
	// ReportInterval controls ProgressReporter's log cadence.
	ReportInterval time.Duration
	// MaxStateFetch caps how many hashes are requested per peer batch.
	MaxStateFetch int
	// IdleBackoff is the main loop's sleep when no batch is ready.
	IdleBackoff time.Duration
	// Workers sizes the hash-verification worker pool. Zero selects
	// max(1, runtime.NumCPU()-1), reserving one core for the control
	// plane.
	Workers int
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		ReplyTimeout:   DefaultReplyTimeout,
		ReportInterval: DefaultReportInterval,
		MaxStateFetch:  DefaultMaxStateFetch,
		IdleBackoff:    DefaultIdleBackoff,
	}
}
