package sphinxcodec

import (
	"encoding/binary"
	"fmt"
)

// SurbSize is the fixed wire size of one stored SURB envelope. A SURB
// is itself a pre-built onion header (see github.com/lightningnetwork/
// lightning-onion's sphinx.OnionPacket, the same type codec.go decodes
// on ingress); this layer never parses a SURB's contents, only stores
// and re-attaches it, so it is carried as an opaque fixed-size blob
// sized to the encoded header this module's Router produces.
const SurbSize = 1 + 33 + 32*20 + 32

// exitFlagApplicationData marks an exit-hop plaintext as carrying
// application data (and therefore an ack_key and optional SURBs) rather
// than a packed acknowledgement batch.
const exitFlagApplicationData = 1 << 0

// ExitPayload is the HOPR-specific plaintext format carried by a Final
// (exit-node) SPHINX packet: either a batch of Acknowledgements
// (IsApplicationData == false, Payload is the raw
// ticket.DecodeAcknowledgementBatch wire format) or one application
// frame plus the ack_key and SURBs the sender attached for the return
// path (IsApplicationData == true).
type ExitPayload struct {
	IsApplicationData bool
	AckKey            [32]byte
	PacketSignals     uint8
	Surbs             [][]byte
	Payload           []byte
}

// EncodeExitPayload serializes an ExitPayload to its wire form.
func EncodeExitPayload(p ExitPayload) ([]byte, error) {
	if !p.IsApplicationData {
		return p.Payload, nil
	}

	if len(p.Surbs) > 0xffff {
		return nil, fmt.Errorf("sphinxcodec: too many surbs (%d)", len(p.Surbs))
	}
	for i, s := range p.Surbs {
		if len(s) != SurbSize {
			return nil, fmt.Errorf("sphinxcodec: surb %d has size %d, want %d", i, len(s), SurbSize)
		}
	}

	header := 1 + 1 + 32 + 2
	buf := make([]byte, header+len(p.Surbs)*SurbSize+len(p.Payload))

	buf[0] = exitFlagApplicationData
	buf[1] = p.PacketSignals
	copy(buf[2:34], p.AckKey[:])
	binary.BigEndian.PutUint16(buf[34:36], uint16(len(p.Surbs)))

	off := header
	for _, s := range p.Surbs {
		copy(buf[off:off+SurbSize], s)
		off += SurbSize
	}
	copy(buf[off:], p.Payload)

	return buf, nil
}

// DecodeExitPayload is the inverse of EncodeExitPayload.
func DecodeExitPayload(raw []byte) (ExitPayload, error) {
	if len(raw) == 0 {
		return ExitPayload{}, fmt.Errorf("sphinxcodec: empty exit payload")
	}

	if raw[0]&exitFlagApplicationData == 0 {
		return ExitPayload{IsApplicationData: false, Payload: raw}, nil
	}

	const header = 1 + 1 + 32 + 2
	if len(raw) < header {
		return ExitPayload{}, fmt.Errorf("sphinxcodec: truncated exit payload header")
	}

	p := ExitPayload{IsApplicationData: true, PacketSignals: raw[1]}
	copy(p.AckKey[:], raw[2:34])
	numSurbs := int(binary.BigEndian.Uint16(raw[34:36]))

	want := header + numSurbs*SurbSize
	if len(raw) < want {
		return ExitPayload{}, fmt.Errorf("sphinxcodec: truncated exit payload surbs: want at least %d bytes, got %d", want, len(raw))
	}

	off := header
	p.Surbs = make([][]byte, numSurbs)
	for i := range p.Surbs {
		surb := make([]byte, SurbSize)
		copy(surb, raw[off:off+SurbSize])
		p.Surbs[i] = surb
		off += SurbSize
	}
	p.Payload = append([]byte(nil), raw[off:]...)

	return p, nil
}
