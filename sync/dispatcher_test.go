package sync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eth2028/eth2028/core/types"
	"github.com/eth2028/eth2028/log"
)

type recordingPeer struct {
	id string

	mu  sync.Mutex
	got [][]types.Hash
	err error
}

func (p *recordingPeer) ID() string { return p.id }

func (p *recordingPeer) SendGetNodeData(hashes []types.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := append([]types.Hash{}, hashes...)
	p.got = append(p.got, cp)
	return p.err
}

func (p *recordingPeer) sent() [][]types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]types.Hash{}, p.got...)
}

func testLogger() *log.Logger {
	return log.New(1000) // level above Error: silences output in tests
}

func TestDispatcher_BatchesAtLimit(t *testing.T) {
	registry := NewPeerRegistry()
	p1 := &recordingPeer{id: "p1"}
	p2 := &recordingPeer{id: "p2"}
	registry.Subscribe(p1)
	registry.Subscribe(p2)

	inflight := NewInflightTable()
	d := NewRequestDispatcher(registry, inflight, 2, testLogger())

	hashes := []types.Hash{
		types.BytesToHash([]byte{1}),
		types.BytesToHash([]byte{2}),
		types.BytesToHash([]byte{3}),
	}
	if err := d.Request(context.Background(), hashes); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// The first batch leaves its peer busy, so the second batch goes to
	// the other peer: one batch each, of sizes 2 and 1.
	s1, s2 := p1.sent(), p2.sent()
	if len(s1) != 1 || len(s2) != 1 {
		t.Fatalf("expected 2 batches (2 + 1), one per peer, got %d and %d", len(s1), len(s2))
	}
	if len(s1[0])+len(s2[0]) != 3 || (len(s1[0]) != 2 && len(s2[0]) != 2) {
		t.Fatalf("unexpected batch sizes: %v %v", s1, s2)
	}
	if inflight.Len() != 3 {
		t.Fatalf("expected all 3 hashes marked in-flight, got %d", inflight.Len())
	}
}

func TestDispatcher_SendFailureIsNonFatal(t *testing.T) {
	registry := NewPeerRegistry()
	peer := &recordingPeer{id: "p1", err: errors.New("boom")}
	registry.Subscribe(peer)

	inflight := NewInflightTable()
	d := NewRequestDispatcher(registry, inflight, 10, testLogger())

	hashes := []types.Hash{types.BytesToHash([]byte{1})}
	if err := d.Request(context.Background(), hashes); err != nil {
		t.Fatalf("expected Request to tolerate a peer send failure, got %v", err)
	}
	if inflight.Len() != 1 {
		t.Fatal("expected the in-flight marker to remain for the timeout sweeper to retry")
	}
}
