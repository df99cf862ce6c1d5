package packet

import (
	"fmt"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightninglabs/neutrino/cache/lru"
)

// PeerKeyResolver converts a transport-level peer identifier into the
// OffchainPublicKey used for SPHINX layer decryption. It is an
// external collaborator boundary (peer identity is a transport
// concept, not something this package derives).
type PeerKeyResolver interface {
	ResolvePeerKey(peer PeerID) (primitives.OffchainPublicKey, error)
}

type peerKeyEntry struct {
	key primitives.OffchainPublicKey
}

func (peerKeyEntry) Size() (uint64, error) { return 1, nil }

// cachedPeerKeyResolver wraps a PeerKeyResolver with a bounded cache
// from peer identifier to OffchainPublicKey, backed by
// github.com/lightninglabs/neutrino/cache/lru, the same dependency the
// chain connector's own caches use.
type cachedPeerKeyResolver struct {
	inner PeerKeyResolver
	cache *lru.Cache[PeerID, peerKeyEntry]
}

// newCachedPeerKeyResolver wraps inner with a bounded LRU cache of the
// given capacity.
func newCachedPeerKeyResolver(inner PeerKeyResolver, capacity uint64) *cachedPeerKeyResolver {
	return &cachedPeerKeyResolver{
		inner: inner,
		cache: lru.NewCache[PeerID, peerKeyEntry](capacity),
	}
}

func (r *cachedPeerKeyResolver) resolve(peer PeerID) (primitives.OffchainPublicKey, error) {
	if e, err := r.cache.Get(peer); err == nil {
		return e.key, nil
	}

	key, err := r.inner.ResolvePeerKey(peer)
	if err != nil {
		return primitives.OffchainPublicKey{}, fmt.Errorf("packet: resolve peer key: %w", err)
	}

	if _, err := r.cache.Put(peer, peerKeyEntry{key: key}); err != nil {
		log.Warnf("packet: peer key cache put failed: %v", err)
	}
	return key, nil
}
