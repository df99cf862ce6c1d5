package sphinxcodec

import (
	"fmt"

	"github.com/hoprnet/hopr-relay-core/ticket"
)

// HopPayload is the HOPR-specific per-hop payload layered on top of the
// base Lightning onion format: the incoming ticket a relay must
// validate, plus the path-position hint the relay uses to scale ticket
// value. Neither field is part of the base
// lightning-onion payload, which only carries routing instructions.
type HopPayload struct {
	// Ticket is the bit-exact 148-byte wire-format ticket (see
	// github.com/hoprnet/hopr-relay-core/ticket.WireSize).
	Ticket []byte

	// PathPosition is the number of remaining hops, including this
	// one, until the packet's final destination. It is a hint, not
	// trusted.
	PathPosition uint32
}

// hopPayloadPositionBytes is the fixed width reserved for the path
// position: HOPR paths are bounded to a handful of hops, so one byte
// (255 max) is ample headroom.
const hopPayloadPositionBytes = 1

// HopPayloadSize is the exact size of an encoded HopPayload.
const HopPayloadSize = ticket.WireSize + hopPayloadPositionBytes

// EncodeHopPayload serializes a HopPayload to its fixed-size wire form.
func EncodeHopPayload(p HopPayload) ([]byte, error) {
	if len(p.Ticket) != ticket.WireSize {
		return nil, fmt.Errorf("sphinxcodec: hop payload ticket must be %d bytes, got %d", ticket.WireSize, len(p.Ticket))
	}
	if p.PathPosition > 0xff {
		return nil, fmt.Errorf("sphinxcodec: path position %d exceeds 8 bits", p.PathPosition)
	}

	buf := make([]byte, HopPayloadSize)
	buf[0] = byte(p.PathPosition)
	copy(buf[hopPayloadPositionBytes:], p.Ticket)
	return buf, nil
}

// DecodeHopPayload is the inverse of EncodeHopPayload.
func DecodeHopPayload(raw []byte) (HopPayload, error) {
	if len(raw) != HopPayloadSize {
		return HopPayload{}, fmt.Errorf("sphinxcodec: expected %d byte hop payload, got %d", HopPayloadSize, len(raw))
	}

	ticketBytes := make([]byte, ticket.WireSize)
	copy(ticketBytes, raw[hopPayloadPositionBytes:])
	return HopPayload{PathPosition: uint32(raw[0]), Ticket: ticketBytes}, nil
}
