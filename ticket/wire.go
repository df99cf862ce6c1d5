// Package ticket implements the probabilistic micropayment ticket
// lifecycle: the bit-exact wire encoding, the unrealized-balance
// tracker that prevents a channel from being oversubscribed, and the
// redemption state machine.
package ticket

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hoprnet/hopr-relay-core/primitives"
)

// WireSize is the exact on-wire size of an encoded Ticket:
// 32 + 12 + 6 + 4 + 3 + 7 + 20 + 64.
const WireSize = 32 + 12 + 6 + 4 + 3 + 7 + 20 + 64

// ChallengeSize is the length of the Ethereum-style ticket challenge
// (an address derived from the sum of the two half-key curve points).
const ChallengeSize = 20

// SignatureSize is the length of the ticket's compact secp256k1
// signature (32-byte r, 32-byte s).
const SignatureSize = 64

// Challenge is the 20-byte Ethereum-derived challenge embedded in a
// ticket, binding it to the SPHINX half-key exchange for the hop.
type Challenge [ChallengeSize]byte

// Signature is a compact (r,s) secp256k1 signature over a ticket's
// signing hash.
type Signature [SignatureSize]byte

// Ticket is the probabilistic micropayment unit exchanged between
// adjacent relays
type Ticket struct {
	ChannelId    primitives.ChannelId
	Amount       primitives.Balance
	Index        uint64 // fits in 48 bits on the wire
	IndexOffset  uint32
	ChannelEpoch uint32 // fits in 24 bits on the wire
	WinProb      float64
	Challenge    Challenge
	Signature    Signature
}

// maxUint48 / maxUint24 bound the fields that are narrower than their
// Go integer type, so encoding can fail loudly instead of silently
// truncating.
const (
	maxUint48 = 1<<48 - 1
	maxUint24 = 1<<24 - 1
)

// winProbFractionBits is the denominator exponent HOPR uses to encode
// a winning probability as an unsigned fixed-point fraction: a 7-byte
// (56-bit) integer representing probability * 2^56, clamped to
// 2^56-1 (so 1.0 is stored as all-ones and decodes back to 1.0). This lets
// "win_prob = 1.0" round-trip exactly as all-ones instead of losing
// precision the way a naive float encoding would.
const winProbFractionBits = 56

// Encode serializes the ticket to its bit-exact 148-byte wire form.
func (t Ticket) Encode() ([]byte, error) {
	if t.Index > maxUint48 {
		return nil, fmt.Errorf("ticket: index %d exceeds 48 bits", t.Index)
	}
	if t.ChannelEpoch > maxUint24 {
		return nil, fmt.Errorf("ticket: channel epoch %d exceeds 24 bits", t.ChannelEpoch)
	}
	if t.WinProb < 0 || t.WinProb > 1 {
		return nil, fmt.Errorf("ticket: win_prob %f out of range [0,1]", t.WinProb)
	}

	buf := make([]byte, WireSize)
	off := 0

	copy(buf[off:off+32], t.ChannelId[:])
	off += 32

	lo, hi := t.Amount.Raw()
	var amountBuf [12]byte
	binary.BigEndian.PutUint32(amountBuf[0:4], hi)
	binary.BigEndian.PutUint64(amountBuf[4:12], lo)
	copy(buf[off:off+12], amountBuf[:])
	off += 12

	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], t.Index)
	copy(buf[off:off+6], idxBuf[2:8])
	off += 6

	binary.BigEndian.PutUint32(buf[off:off+4], t.IndexOffset)
	off += 4

	var epochBuf [4]byte
	binary.BigEndian.PutUint32(epochBuf[:], t.ChannelEpoch)
	copy(buf[off:off+3], epochBuf[1:4])
	off += 3

	copy(buf[off:off+7], encodeWinProb(t.WinProb))
	off += 7

	copy(buf[off:off+ChallengeSize], t.Challenge[:])
	off += ChallengeSize

	copy(buf[off:off+SignatureSize], t.Signature[:])
	off += SignatureSize

	return buf, nil
}

// DecodeTicket parses a 148-byte wire-format ticket.
func DecodeTicket(raw []byte) (Ticket, error) {
	if len(raw) != WireSize {
		return Ticket{}, fmt.Errorf("ticket: expected %d bytes, got %d", WireSize, len(raw))
	}

	var t Ticket
	off := 0

	copy(t.ChannelId[:], raw[off:off+32])
	off += 32

	hi := binary.BigEndian.Uint32(raw[off : off+4])
	lo := binary.BigEndian.Uint64(raw[off+4 : off+12])
	t.Amount = primitives.BalanceFromRaw(lo, hi)
	off += 12

	var idxBuf [8]byte
	copy(idxBuf[2:8], raw[off:off+6])
	t.Index = binary.BigEndian.Uint64(idxBuf[:])
	off += 6

	t.IndexOffset = binary.BigEndian.Uint32(raw[off : off+4])
	off += 4

	var epochBuf [4]byte
	copy(epochBuf[1:4], raw[off:off+3])
	t.ChannelEpoch = binary.BigEndian.Uint32(epochBuf[:])
	off += 3

	t.WinProb = decodeWinProb(raw[off : off+7])
	off += 7

	copy(t.Challenge[:], raw[off:off+ChallengeSize])
	off += ChallengeSize

	copy(t.Signature[:], raw[off:off+SignatureSize])
	off += SignatureSize

	return t, nil
}

// encodeWinProb converts a [0,1] probability into its 7-byte unsigned
// fixed-point wire representation.
func encodeWinProb(p float64) []byte {
	var full [8]byte
	scaled := uint64(math.Round(p * float64(uint64(1)<<winProbFractionBits)))
	if maxScaled := uint64(1)<<winProbFractionBits - 1; scaled > maxScaled {
		scaled = maxScaled
	}
	binary.BigEndian.PutUint64(full[:], scaled)
	return full[1:8]
}

// decodeWinProb is the inverse of encodeWinProb.
func decodeWinProb(raw []byte) float64 {
	var full [8]byte
	copy(full[1:8], raw)
	scaled := binary.BigEndian.Uint64(full[:])
	return float64(scaled) / float64(uint64(1)<<winProbFractionBits)
}

// Acknowledgement is the wire format exchanged to release a half-key
// for a previously issued unacknowledged ticket: a signature plus the
// sender's half of the shared challenge key
type Acknowledgement struct {
	Signature Signature
	HalfKey   [32]byte
}

// AcknowledgementWireSize is the exact on-wire size of one
// Acknowledgement: 64 + 32.
const AcknowledgementWireSize = SignatureSize + 32

// EncodeAcknowledgementBatch packs a batch of acknowledgements into the
// `u16 num_acks ∥ num_acks × 96B` final-payload format.
func EncodeAcknowledgementBatch(acks []Acknowledgement) ([]byte, error) {
	if len(acks) > math.MaxUint16 {
		return nil, fmt.Errorf("ticket: too many acknowledgements (%d)", len(acks))
	}

	buf := make([]byte, 2+len(acks)*AcknowledgementWireSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(acks)))

	off := 2
	for _, ack := range acks {
		copy(buf[off:off+SignatureSize], ack.Signature[:])
		off += SignatureSize
		copy(buf[off:off+32], ack.HalfKey[:])
		off += 32
	}
	return buf, nil
}

// DecodeAcknowledgementBatch is the inverse of
// EncodeAcknowledgementBatch.
func DecodeAcknowledgementBatch(raw []byte) ([]Acknowledgement, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("ticket: truncated acknowledgement batch header")
	}
	n := binary.BigEndian.Uint16(raw[0:2])
	want := 2 + int(n)*AcknowledgementWireSize
	if len(raw) != want {
		return nil, fmt.Errorf("ticket: expected %d bytes for %d acks, got %d", want, n, len(raw))
	}

	acks := make([]Acknowledgement, n)
	off := 2
	for i := range acks {
		copy(acks[i].Signature[:], raw[off:off+SignatureSize])
		off += SignatureSize
		copy(acks[i].HalfKey[:], raw[off:off+32])
		off += 32
	}
	return acks, nil
}
