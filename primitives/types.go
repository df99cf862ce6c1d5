// Package primitives defines the identifiers shared by the chain
// connector, ticket tracker, and packet decoder: on-chain addresses,
// offchain (packet-layer) public keys, compact graph vertex ids, and
// channel identifiers.
package primitives

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

const (
	// AddressLength is the length in bytes of an on-chain account
	// address.
	AddressLength = 20

	// ChannelIDLength is the length in bytes of a channel identifier.
	ChannelIDLength = 32

	// OffchainPublicKeyLength is the length in bytes of a compressed
	// Ed25519-family offchain public key.
	OffchainPublicKeyLength = 32
)

// Address is a 20-byte on-chain account identifier.
type Address [AddressLength]byte

// String returns the 0x-prefixed hex encoding of the address.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBytes builds an Address from a byte slice, which must be
// exactly AddressLength bytes long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("primitives: invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// KeyId is a compact integer alias for an OffchainPublicKey, used as the
// vertex identity in the channel graph to keep it small relative to the
// full key material.
type KeyId uint32

// PseudonymLength is the length in bytes of a Pseudonym.
const PseudonymLength = 16

// Pseudonym is the short-lived identifier a sender attaches to
// pseudonym-addressed packets so a recipient can multiplex several
// sessions from the same anonymous counterparty without learning its
// long-term key.
type Pseudonym [PseudonymLength]byte

// String returns the hex encoding of the pseudonym.
func (p Pseudonym) String() string {
	return hex.EncodeToString(p[:])
}

// OffchainPublicKey is the Ed25519-family key used for SPHINX layer
// decryption and acknowledgement signing.
type OffchainPublicKey [OffchainPublicKeyLength]byte

// String returns the hex encoding of the key.
func (k OffchainPublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// ChannelId is a 32-byte identifier deterministically derived from the
// (source, destination) address pair of a payment channel.
type ChannelId [ChannelIDLength]byte

// String returns the 0x-prefixed hex encoding of the channel id.
func (c ChannelId) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// NewChannelId derives the deterministic channel id for a directed
// channel from source to destination. It mirrors the on-chain contract's
// own derivation: keccak256(source || destination).
func NewChannelId(source, destination Address) ChannelId {
	var buf [2 * AddressLength]byte
	copy(buf[:AddressLength], source[:])
	copy(buf[AddressLength:], destination[:])

	digest := sha3.NewLegacyKeccak256()
	digest.Write(buf[:])

	var id ChannelId
	copy(id[:], digest.Sum(nil))
	return id
}

// ChannelStatus enumerates the lifecycle states of a payment channel.
type ChannelStatus uint8

const (
	// ChannelOpen indicates a channel that is funded and accepting
	// tickets.
	ChannelOpen ChannelStatus = iota
	// ChannelPendingToClose indicates a channel whose cooperative or
	// unilateral closure has been initiated but not yet finalized.
	ChannelPendingToClose
	// ChannelClosed indicates a channel that has been fully closed
	// on-chain.
	ChannelClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelOpen:
		return "Open"
	case ChannelPendingToClose:
		return "PendingToClose"
	case ChannelClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Balance is a non-negative on-chain token amount, represented as an
// unsigned 96-bit-range integer (tickets only ever need 12 bytes, see
// the ticket wire format), stored here as a big.Int-compatible uint64
// pair for simplicity: the low 64 bits plus a 32-bit high extension,
// which is ample for any realistic channel balance while keeping the
// hot path allocation-free.
type Balance struct {
	lo uint64
	hi uint32
}

// NewBalance constructs a Balance from a uint64 amount.
func NewBalance(amount uint64) Balance {
	return Balance{lo: amount}
}

// Uint64 returns the balance truncated to 64 bits. Callers on the hot
// ticket-accounting path only ever deal in amounts that fit in 64 bits;
// the 32-bit extension exists solely so Balance can represent the full
// 96-bit range the wire format allows for channel balances funded
// directly on-chain.
func (b Balance) Uint64() uint64 {
	return b.lo
}

// Add returns the sum of two balances, saturating rather than
// overflowing.
func (b Balance) Add(other Balance) Balance {
	lo := b.lo + other.lo
	hi := uint64(b.hi) + uint64(other.hi)
	if lo < b.lo {
		hi++
	}
	if hi > uint64(^uint32(0)) {
		return Balance{lo: ^uint64(0), hi: ^uint32(0)}
	}
	return Balance{lo: lo, hi: uint32(hi)}
}

// Sub returns b-other, saturating at zero rather than going negative.
func (b Balance) Sub(other Balance) Balance {
	if b.Cmp(other) <= 0 {
		return Balance{}
	}
	lo := b.lo - other.lo
	hi := b.hi - other.hi
	if b.lo < other.lo {
		hi--
	}
	return Balance{lo: lo, hi: hi}
}

// Cmp compares two balances, returning -1, 0 or 1.
func (b Balance) Cmp(other Balance) int {
	switch {
	case b.hi != other.hi:
		if b.hi < other.hi {
			return -1
		}
		return 1
	case b.lo != other.lo:
		if b.lo < other.lo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// IsZero reports whether the balance is zero.
func (b Balance) IsZero() bool {
	return b.lo == 0 && b.hi == 0
}

// Raw exposes the low/high limbs for wire and storage encoding.
func (b Balance) Raw() (lo uint64, hi uint32) {
	return b.lo, b.hi
}

// BalanceFromRaw reconstructs a Balance from its low/high limbs, as
// produced by Raw.
func BalanceFromRaw(lo uint64, hi uint32) Balance {
	return Balance{lo: lo, hi: hi}
}

// String renders the balance in decimal.
func (b Balance) String() string {
	if b.hi == 0 {
		return fmt.Sprintf("%d", b.lo)
	}
	// Rare overflow path: render as a 96-bit decimal value.
	v := new(big.Int).Lsh(new(big.Int).SetUint64(uint64(b.hi)), 64)
	return v.Or(v, new(big.Int).SetUint64(b.lo)).String()
}

// PubKeyFromBytes parses a compressed secp256k1 public key, used for
// on-chain signature verification of tickets (the chain key, distinct
// from the Ed25519-family OffchainPublicKey used for SPHINX).
func PubKeyFromBytes(b []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(b)
}
