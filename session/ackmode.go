package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// AckMode selects which control messages a session emits for a given
// direction of traffic
type AckMode uint8

const (
	AckNone AckMode = iota
	AckPartial
	AckFull
	AckBoth
)

// WantsNack reports whether this mode emits RetransmissionRequest
// (NACK) control messages.
func (m AckMode) WantsNack() bool { return m == AckPartial || m == AckBoth }

// WantsAck reports whether this mode emits FrameAcknowledge (ACK)
// control messages.
func (m AckMode) WantsAck() bool { return m == AckFull || m == AckBoth }

// TLV type numbers for the two control messages' fields, in the same
// per-message namespace lnwire assigns its own extension records.
const (
	tlvTypeFrameID           tlv.Type = 0
	tlvTypeMissingSeqIndices tlv.Type = 1
)

// RetransmissionRequest is the Partial-mode control message a receiver
// emits when it observes a gap in a frame older than a threshold
//.
type RetransmissionRequest struct {
	FrameId           FrameId
	MissingSeqIndices []SeqNum
}

// FrameAcknowledge is the Full-mode control message a receiver emits on
// every completed frame.
type FrameAcknowledge struct {
	FrameId FrameId
}

// Encode serializes r with github.com/lightningnetwork/lnd/tlv, the
// module's own type-length-value codec for extensible wire messages,
// the same library lnwire composes its messages with.
func (r RetransmissionRequest) Encode() ([]byte, error) {
	frameID := uint32(r.FrameId)
	missing := make([]byte, len(r.MissingSeqIndices))
	for i, s := range r.MissingSeqIndices {
		missing[i] = byte(s)
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(tlvTypeFrameID, &frameID),
		tlv.MakeDynamicRecord(
			tlvTypeMissingSeqIndices, &missing,
			func() uint64 { return uint64(len(missing)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("session: build retransmission request stream: %w", err)
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, fmt.Errorf("session: encode retransmission request: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRetransmissionRequest is the inverse of
// RetransmissionRequest.Encode.
func DecodeRetransmissionRequest(raw []byte) (RetransmissionRequest, error) {
	var (
		frameID uint32
		missing []byte
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(tlvTypeFrameID, &frameID),
		tlv.MakeDynamicRecord(
			tlvTypeMissingSeqIndices, &missing,
			func() uint64 { return uint64(len(missing)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
	)
	if err != nil {
		return RetransmissionRequest{}, fmt.Errorf("session: build retransmission request stream: %w", err)
	}
	if err := stream.Decode(bytes.NewReader(raw)); err != nil {
		return RetransmissionRequest{}, fmt.Errorf("session: decode retransmission request: %w", err)
	}

	indices := make([]SeqNum, len(missing))
	for i, b := range missing {
		indices[i] = SeqNum(b)
	}
	return RetransmissionRequest{FrameId: FrameId(frameID), MissingSeqIndices: indices}, nil
}

// Encode serializes a FrameAcknowledge control message.
func (a FrameAcknowledge) Encode() ([]byte, error) {
	frameID := uint32(a.FrameId)

	stream, err := tlv.NewStream(tlv.MakePrimitiveRecord(tlvTypeFrameID, &frameID))
	if err != nil {
		return nil, fmt.Errorf("session: build acknowledge stream: %w", err)
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, fmt.Errorf("session: encode acknowledge: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrameAcknowledge is the inverse of FrameAcknowledge.Encode.
func DecodeFrameAcknowledge(raw []byte) (FrameAcknowledge, error) {
	var frameID uint32

	stream, err := tlv.NewStream(tlv.MakePrimitiveRecord(tlvTypeFrameID, &frameID))
	if err != nil {
		return FrameAcknowledge{}, fmt.Errorf("session: build acknowledge stream: %w", err)
	}
	if err := stream.Decode(bytes.NewReader(raw)); err != nil {
		return FrameAcknowledge{}, fmt.Errorf("session: decode acknowledge: %w", err)
	}
	return FrameAcknowledge{FrameId: FrameId(frameID)}, nil
}

var _ io.Reader // keep io imported for godoc clarity on Decode(r io.Reader)
