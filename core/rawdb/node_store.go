// node_store.go adapts the generic KVStore to the content-addressed
// NodeStore contract the trie synchronizer writes into: 32-byte hash
// keys, opaque blob values, no schema versioning. A small fastcache
// front absorbs the repeated Has()/Get() probes the scheduler and
// timeout sweeper issue for nodes that were already committed by an
// earlier, duplicate reply.
package rawdb

import (
	"github.com/VictoriaMetrics/fastcache"
)

// DefaultNodeCacheBytes is the default size of the NodeStore's
// in-memory front cache.
const DefaultNodeCacheBytes = 16 * 1024 * 1024

// NodeStore is a write-through KVStore wrapper keyed by content hash.
// It satisfies the KVStore interface so it can be passed anywhere a
// plain store is expected, while also serving hot reads (duplicate
// deliveries, timeout-sweeper re-checks) out of an in-memory cache
// instead of the backing store.
type NodeStore struct {
	backing KVStore
	cache   *fastcache.Cache
}

// NewNodeStore wraps backing with a front cache of the given size in
// bytes. A size of 0 uses DefaultNodeCacheBytes.
func NewNodeStore(backing KVStore, cacheBytes int) *NodeStore {
	if cacheBytes <= 0 {
		cacheBytes = DefaultNodeCacheBytes
	}
	return &NodeStore{
		backing: backing,
		cache:   fastcache.New(cacheBytes),
	}
}

// Put writes a node, updating the cache first so a subsequent Has/Get
// for the same hash never round-trips to the backing store.
func (n *NodeStore) Put(key, value []byte) error {
	n.cache.Set(key, value)
	return n.backing.Put(key, value)
}

// Get returns a node's bytes, preferring the cache.
func (n *NodeStore) Get(key []byte) ([]byte, error) {
	if v := n.cache.Get(nil, key); v != nil {
		return v, nil
	}
	v, err := n.backing.Get(key)
	if err != nil {
		return nil, err
	}
	n.cache.Set(key, v)
	return v, nil
}

// Has reports whether a node is known, checking the cache before the
// backing store.
func (n *NodeStore) Has(key []byte) (bool, error) {
	if n.cache.Has(key) {
		return true, nil
	}
	return n.backing.Has(key)
}

// Delete removes a node from both the cache and the backing store.
func (n *NodeStore) Delete(key []byte) error {
	n.cache.Del(key)
	return n.backing.Delete(key)
}

// Close releases the cache and closes the backing store.
func (n *NodeStore) Close() error {
	n.cache.Reset()
	return n.backing.Close()
}

// InstrumentedNodeStore wraps a NodeStore (or any KVStore) and invokes
// OnPut synchronously after every successful write, before Put returns.
// Tests use it to snapshot the store on each commit and assert that
// every parent commit observes all of its children already present —
// the bottom-up commit property.
type InstrumentedNodeStore struct {
	KVStore
	OnPut func(key, value []byte)
}

// Put writes through to the wrapped store, then calls OnPut if set.
func (i *InstrumentedNodeStore) Put(key, value []byte) error {
	if err := i.KVStore.Put(key, value); err != nil {
		return err
	}
	if i.OnPut != nil {
		i.OnPut(key, value)
	}
	return nil
}
