// Package sphinxcodec wraps lightningnetwork/lightning-onion's SPHINX
// implementation as the underlying onion-peeling primitive for HOPR
// packets, extended with the per-hop payload fields (ticket bytes,
// reply SURBs, pseudonym, path position) the base Lightning onion
// format doesn't carry. Grounded on peer.go's
// handleUpstreamMsg/ProcessOnionPacket dispatch and on
// original_source/protocols/hopr/src/codec/decoder.rs for the exact
// phase breakdown.
package sphinxcodec

import (
	"bytes"
	"fmt"

	sphinx "github.com/lightningnetwork/lightning-onion"

	"github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/hoprnet/hopr-relay-core/ticket"
	"golang.org/x/crypto/sha3"
)

// Action mirrors sphinx.ExitNode/sphinx.MoreHops, plus Outgoing: a
// state the Router should never hand back to an ingress caller, kept
// here so the decoder can report it as the protocol violation it is
//.
type Action uint8

const (
	ActionFinal Action = iota
	ActionForwarded
	ActionOutgoing
)

// ErrOutgoingAtIngress is returned when the underlying router reports
// an outgoing packet at ingress: a decode result that is itself
// outgoing is a protocol violation, InvalidState("cannot be outgoing
// packet").
var ErrOutgoingAtIngress = errors.New("sphinxcodec: cannot be outgoing packet")

// PacketTag is the 16-byte prefix of the SPHINX shared secret used for
// replay detection
type PacketTag [16]byte

// DecodedPacket is the result of peeling one SPHINX layer.
type DecodedPacket struct {
	Action Action
	Tag    PacketTag

	// OwnHalfKey is this relay's own half of the per-hop SPHINX key
	// exchange, present on every non-Outgoing action. The caller uses
	// it to acknowledge the previous hop once the packet (or the
	// ticket it carried) has been processed.
	OwnHalfKey [32]byte

	// Final-only fields.
	PlainText []byte

	// Forwarded-only fields.
	NextHopKeyId   primitives.KeyId
	NextHopAddress primitives.Address
	OutgoingData   []byte
	HopPayload     HopPayload
	NextChallenge  ticket.Challenge
}

// deriveField derives HOPR-specific per-hop key material from the base
// Lightning onion's shared secret via domain-separated hashing: the
// retrieved lightning-onion dependency exposes only the raw shared
// secret at this layer, not the half-key/challenge primitives HOPR's
// own packet format needs, so this module derives them itself rather
// than widen the base onion package.
func deriveField(sharedSecret []byte, label string) [32]byte {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(sharedSecret)
	digest.Write([]byte(label))

	var out [32]byte
	copy(out[:], digest.Sum(nil))
	return out
}

// deriveChallenge derives the 20-byte Ethereum-style challenge embedded
// in the outgoing ticket for a forwarded packet, the same way
// deriveField derives the other per-hop secrets.
func deriveChallenge(sharedSecret []byte) ticket.Challenge {
	full := deriveField(sharedSecret, "hopr-ticket-challenge")
	var out ticket.Challenge
	copy(out[:], full[:len(out)])
	return out
}

// Router is the subset of sphinx.Router this package depends on,
// narrowed to ease testing.
type Router interface {
	ProcessOnionPacket(onionPkt *sphinx.OnionPacket, assocData []byte) (*sphinx.ProcessedPacket, error)
}

// KeyIdMapper translates the raw next-hop address embedded in a peeled
// SPHINX header into a compact KeyId.
type KeyIdMapper interface {
	KeyIdForAddress(addr primitives.Address) (primitives.KeyId, error)
}

// Decoder peels one SPHINX layer and classifies the result.
type Decoder struct {
	router Router
	keyIds KeyIdMapper
}

// NewDecoder builds a Decoder around an already-constructed sphinx
// Router (see sphinx.NewRouter) and a KeyIdMapper.
func NewDecoder(router Router, keyIds KeyIdMapper) *Decoder {
	return &Decoder{router: router, keyIds: keyIds}
}

// Decode peels one layer from raw using the node's offchain keypair
// (already bound into router) and the given associated data (typically
// derived from the packet's pseudonym). It never performs replay
// detection itself — that is layered by the caller using the returned
// Tag, since invalid packets must not pollute the replay filter
//.
func (d *Decoder) Decode(raw []byte, assocData []byte) (*DecodedPacket, error) {
	onionPkt := &sphinx.OnionPacket{}
	if err := onionPkt.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("sphinxcodec: decode onion packet: %w", err)
	}

	processed, err := d.router.ProcessOnionPacket(onionPkt, assocData)
	if err != nil {
		return nil, fmt.Errorf("sphinxcodec: process onion packet: %w", err)
	}

	var tag PacketTag
	copy(tag[:], processed.SharedSecret[:len(tag)])
	ownHalfKey := deriveField(processed.SharedSecret[:], "hopr-own-half-key")

	switch processed.Action {
	case sphinx.ExitNode:
		return &DecodedPacket{
			Action:     ActionFinal,
			Tag:        tag,
			OwnHalfKey: ownHalfKey,
			PlainText:  processed.Payload,
		}, nil

	case sphinx.MoreHops:
		payload, err := DecodeHopPayload(processed.Payload)
		if err != nil {
			return nil, fmt.Errorf("sphinxcodec: decode hop payload: %w", err)
		}

		nextAddr, err := primitives.AddressFromBytes(processed.NextAddress)
		if err != nil {
			return nil, fmt.Errorf("sphinxcodec: next-hop address: %w", err)
		}
		keyId, err := d.keyIds.KeyIdForAddress(nextAddr)
		if err != nil {
			return nil, fmt.Errorf("sphinxcodec: resolve next hop: %w", err)
		}

		return &DecodedPacket{
			Action:         ActionForwarded,
			Tag:            tag,
			OwnHalfKey:     ownHalfKey,
			NextHopKeyId:   keyId,
			NextHopAddress: nextAddr,
			OutgoingData:   processed.NextOnion,
			HopPayload:     payload,
			NextChallenge:  deriveChallenge(processed.SharedSecret[:]),
		}, nil

	default:
		return nil, ErrOutgoingAtIngress
	}
}
