package sphinxcodec

import (
	"math"
	"sync"

	"github.com/aead/siphash"
)

// ReplayFilter is the Bloom filter guarding against fast, line-rate
// replay: false positives are tolerated (drop
// one legitimate packet per ~2^32 given a correctly sized filter);
// false negatives are unacceptable. Two independent siphash-2-4 keyed
// hashes (github.com/aead/siphash) are combined via double hashing
// (Kirsch-Mitzenmacher) to synthesize k independent hash functions from
// two, the standard technique for building a
// Bloom filter on top of a single fast keyed hash family rather than k
// distinct ones.
//
// Process-local and never persisted: packets replayed across a
// restart are still rejected at the on-chain ticket-index check.
type ReplayFilter struct {
	mu   sync.Mutex
	bits []uint64
	m    uint64 // total bit count, a multiple of 64
	k    uint64 // number of synthesized hash functions
	key1 [16]byte
	key2 [16]byte
}

// NewReplayFilter sizes a filter for expectedItems entries at the given
// target false-positive rate, using the standard Bloom filter sizing
// formulas m = -n*ln(p)/(ln2)^2 and k = (m/n)*ln2. The two siphash keys
// must each be 16 bytes and should be process-random (not derived from
// anything an adversary could predict, or they could engineer
// collisions to force false positives against a chosen tag).
func NewReplayFilter(expectedItems uint64, falsePositiveRate float64, key1, key2 [16]byte) *ReplayFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 1e-9
	}

	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 64
	}
	k := uint64(math.Round(float64(m) / float64(expectedItems) * math.Ln2))
	if k == 0 {
		k = 1
	}

	words := (m + 63) / 64
	return &ReplayFilter{
		bits: make([]uint64, words),
		m:    words * 64,
		k:    k,
		key1: key1,
		key2: key2,
	}
}

// CheckAndSet reports whether tag has (probably) already been seen and
// unconditionally marks it seen. Guarded by a single mutex: the
// operation takes nanoseconds, so holding the lock across both the
// check and the set is not a contention
// concern.
func (f *ReplayFilter) CheckAndSet(tag PacketTag) bool {
	h1 := siphash.Sum64(f.key1[:], tag[:])
	h2 := siphash.Sum64(f.key2[:], tag[:])

	f.mu.Lock()
	defer f.mu.Unlock()

	bitPositions := make([]uint64, f.k)
	alreadySet := true
	for i := uint64(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		bitPositions[i] = bit

		word, mask := bit/64, uint64(1)<<(bit%64)
		if f.bits[word]&mask == 0 {
			alreadySet = false
		}
	}

	for _, bit := range bitPositions {
		word, mask := bit/64, uint64(1)<<(bit%64)
		f.bits[word] |= mask
	}

	return alreadySet
}
