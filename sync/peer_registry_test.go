package sync

import (
	"context"
	"testing"
	"time"

	"github.com/eth2028/eth2028/core/types"
)

type fakePeer struct {
	id string
}

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) SendGetNodeData(hashes []types.Hash) error { return nil }

func TestPeerRegistry_SubscribeAndIdle(t *testing.T) {
	r := NewPeerRegistry()
	r.Subscribe(&fakePeer{id: "a"})
	r.Subscribe(&fakePeer{id: "b"})

	idle := r.IdlePeers()
	if len(idle) != 2 {
		t.Fatalf("expected 2 idle peers, got %d", len(idle))
	}
}

func TestPeerRegistry_MarkBusyExcludesFromIdle(t *testing.T) {
	r := NewPeerRegistry()
	r.Subscribe(&fakePeer{id: "a"})
	r.MarkBusy("a", time.Now())

	if len(r.IdlePeers()) != 0 {
		t.Fatal("expected no idle peers once the only peer is busy")
	}
}

func TestPeerRegistry_MarkIdle_UnblocksWaiter(t *testing.T) {
	r := NewPeerRegistry()
	r.Subscribe(&fakePeer{id: "a"})
	r.MarkBusy("a", time.Now())

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := r.PickIdle(ctx); err != nil {
			t.Errorf("PickIdle: %v", err)
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.MarkIdle("a")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PickIdle did not unblock after MarkIdle")
	}
}

func TestPeerRegistry_PickIdle_CancelledContext(t *testing.T) {
	r := NewPeerRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.PickIdle(ctx); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestPeerRegistry_StaleBusy(t *testing.T) {
	r := NewPeerRegistry()
	r.Subscribe(&fakePeer{id: "a"})
	old := time.Now().Add(-time.Hour)
	r.MarkBusy("a", old)

	stale := r.StaleBusy(time.Minute, time.Now())
	if len(stale) != 1 || stale[0] != "a" {
		t.Fatalf("expected peer a reported stale, got %v", stale)
	}
	if len(r.IdlePeers()) != 1 {
		t.Fatal("expected the peer freed after StaleBusy")
	}
}

func TestPeerRegistry_Unsubscribe(t *testing.T) {
	r := NewPeerRegistry()
	r.Subscribe(&fakePeer{id: "a"})
	r.Unsubscribe("a")

	if len(r.IdlePeers()) != 0 {
		t.Fatal("expected no peers after Unsubscribe")
	}
}
