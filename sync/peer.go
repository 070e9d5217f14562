package sync

import "github.com/eth2028/eth2028/core/types"

// Peer is the external collaborator contract of §6: message framing,
// handshake and encryption are out of scope here, so Peer exposes only
// the operations the dispatcher and registry need.
type Peer interface {
	// ID uniquely identifies the peer for bookkeeping and logging.
	ID() string
	// SendGetNodeData requests up to MaxStateFetch hashes. It does not
	// block for the reply — replies arrive asynchronously through the
	// registry's inbound message queue.
	SendGetNodeData(hashes []types.Hash) error
}

// CommandKind identifies the type of an inbound peer message. Only
// NodeData is meaningful to the reply handler; everything else is
// logged and dropped, matching §4.4.
type CommandKind int

const (
	// CommandNodeData carries node blobs in response to a prior
	// SendGetNodeData.
	CommandNodeData CommandKind = iota
	// CommandOther covers any other protocol message this component
	// does not act on (handshakes, status, unrelated request types).
	CommandOther
)

// InboundMessage is a single message pulled off a peer's inbound queue.
type InboundMessage struct {
	Peer    Peer
	Kind    CommandKind
	Payload [][]byte // node blobs, for CommandNodeData; unused otherwise
}

// PeerPool is the subset of the transport's peer pool this package
// consumes: a scoped subscription yielding an inbound message channel.
// Connection lifecycle, handshake and framing belong to the transport
// and are out of scope (§1).
type PeerPool interface {
	// Subscribe returns the channel of inbound messages from all
	// currently and subsequently connected peers. The channel is closed
	// when the pool itself shuts down.
	Subscribe() <-chan InboundMessage
}
