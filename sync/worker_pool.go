// worker_pool.go offloads the CPU-bound keccak256 hashing of received
// node blobs off the reply-handling goroutines so that message intake
// is never blocked waiting on hashing. The pool is bounded to
// max(1, logical CPUs - 1), reserving one core so the single-threaded
// control plane (the scheduler) always has room to run.
package sync

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/crypto"
)

// HashWorkerPool bounds concurrent keccak256 hashing.
type HashWorkerPool struct {
	sem *semaphore.Weighted
}

// NewHashWorkerPool creates a pool with the given worker count. A count
// of 0 or less selects max(1, runtime.NumCPU()-1).
func NewHashWorkerPool(workers int) *HashWorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	return &HashWorkerPool{sem: semaphore.NewWeighted(int64(workers))}
}

// HashedBlob pairs a received node blob with its own content hash. The
// node store is content-addressed, so this hash IS the request key the
// blob satisfies — there is no separately-transmitted expected hash to
// compare against.
type HashedBlob struct {
	Hash types.Hash
	Data []byte
}

// HashAll computes keccak256 for every blob concurrently, bounded by the
// pool's worker count, and returns results in input order. It blocks
// until every blob has been hashed or ctx is cancelled.
func (p *HashWorkerPool) HashAll(ctx context.Context, blobs [][]byte) ([]HashedBlob, error) {
	results := make([]HashedBlob, len(blobs))
	var wg sync.WaitGroup

	for i, blob := range blobs {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, blob []byte) {
			defer wg.Done()
			defer p.sem.Release(1)
			results[i] = HashedBlob{Hash: crypto.Keccak256Hash(blob), Data: blob}
		}(i, blob)
	}

	wg.Wait()
	return results, nil
}
