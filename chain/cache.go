package chain

import (
	"sync"
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/lightningnetwork/lnd/clock"
)

// idleTTL is the 600s expiry window shared by the connector's key and
// channel caches, measured from an entry's last Put.
const idleTTL = 600 * time.Second

// valueTTL is the 600s *absolute* TTL used by the oracle value cache,
// since its entries are derived from two independent event streams
// (ticket price, winning probability) and can't rely on per-field
// invalidation alone.
const valueTTL = 600 * time.Second

// entry wraps a cached value together with the last time it was
// written, used to implement TTL eviction on top of neutrino's
// plain-capacity LRU.
type entry[V any] struct {
	value     V
	lastTouch time.Time
}

func (e *entry[V]) Size() (uint64, error) { return 1, nil }

// ttlCache is a bounded, concurrency-safe cache with capacity-based LRU
// eviction (delegated to github.com/lightninglabs/neutrino/cache/lru)
// plus a lazy TTL check on every Get, giving a bounded
// (capacity 10k-100k) cache whose entries expire ttl after their last
// Put; a Get does not extend an entry's lifetime. Writers update
// (never invalidate) to preserve read-your-writes for the
// producer.
type ttlCache[K comparable, V any] struct {
	mu    sync.Mutex
	inner *lru.Cache[K, *entry[V]]
	clock clock.Clock
	ttl   time.Duration
}

// newTTLCache builds a cache with the given capacity and TTL.
func newTTLCache[K comparable, V any](capacity uint64, ttl time.Duration, clk clock.Clock) *ttlCache[K, V] {
	return &ttlCache[K, V]{
		inner: lru.NewCache[K, *entry[V]](capacity),
		clock: clk,
		ttl:   ttl,
	}
}

// Get returns the cached value for key, or ok=false on a miss or an
// expired entry (which is evicted immediately, "falling through"
// to whatever the caller's own backend lookup is).
func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, err := c.inner.Get(key)
	if err != nil || e == nil {
		return zero, false
	}

	if c.clock.Now().Sub(e.lastTouch) > c.ttl {
		c.inner.Delete(key)
		return zero, false
	}

	return e.value, true
}

// Put inserts or replaces the value for key, resetting its idle timer.
func (c *ttlCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.inner.Put(key, &entry[V]{value: value, lastTouch: c.clock.Now()})
}

// Delete removes key from the cache, if present.
func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inner.Delete(key)
}

// valueCacheKey is the single key ('s documented
// simplification) under which both the ticket price and the minimum
// winning probability are cached together, so that a change to either
// field invalidates both at once.
type valueCacheKey struct{}

// OracleValues bundles the two chain-oracle values the packet decoder
// needs on every forwarded packet: the current per-hop ticket price and
// the minimum acceptable winning probability.
type OracleValues struct {
	TicketPrice primitives.Balance
	MinWinProb  float64
	CachedAt    time.Time
}

// partyKey is the (source,destination) composite key backing the
// by-parties channel cache used for path resolution.
type partyKey struct {
	Source      primitives.Address
	Destination primitives.Address
}

// Caches groups the bounded, TTL-governed lookup tables the connector
// maintains: chain-address<->packet-key, channel-id->ChannelEntry,
// (src,dst)->ChannelEntry, and the oracle value cache.
type Caches struct {
	ChainToPacket *ttlCache[primitives.Address, primitives.OffchainPublicKey]
	PacketToChain *ttlCache[primitives.OffchainPublicKey, primitives.Address]
	ByChannelId   *ttlCache[primitives.ChannelId, ChannelEntry]
	ByParties     *ttlCache[partyKey, ChannelEntry]
	Values        *ttlCache[valueCacheKey, OracleValues]
}

// NewCaches builds the full set of connector caches with the given
// capacity and TTL policy.
func NewCaches(capacity uint64, clk clock.Clock) *Caches {
	return &Caches{
		ChainToPacket: newTTLCache[primitives.Address, primitives.OffchainPublicKey](capacity, idleTTL, clk),
		PacketToChain: newTTLCache[primitives.OffchainPublicKey, primitives.Address](capacity, idleTTL, clk),
		ByChannelId:   newTTLCache[primitives.ChannelId, ChannelEntry](capacity, idleTTL, clk),
		ByParties:     newTTLCache[partyKey, ChannelEntry](capacity, idleTTL, clk),
		Values:        newTTLCache[valueCacheKey, OracleValues](1, valueTTL, clk),
	}
}
