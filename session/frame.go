// Package session implements the byte-stream abstraction layered over
// the pseudonym-addressed packet substrate: framing/segmentation,
// optional selective retransmission, and the SURB-flow balancer. None
// of this has a direct analogue elsewhere in this module's own ancestry
// (there is no notion of an application byte stream riding on top of a
// wire protocol in the packet layer), so it is grounded directly on the
// Rust originals retrieved
// under original_source/protocols/session and
// original_source/transport/session, translated into idiomatic Go.
package session

import (
	"encoding/binary"
	"fmt"
)

// FrameId identifies one application-level frame. It increments per
// completed frame and wraps; 0 is reserved to mean "end of frame-id
// space".
type FrameId uint32

// SeqNum is a segment's index within its frame.
type SeqNum uint8

// MaxSegmentsPerFrame bounds seq_len: the 7 low bits of a SegFlags byte
// leave the top bit for the terminating flag, per
// original_source/protocols/session/src/processing/segmenter.rs's
// "SeqIndicator::MAX + 1 segments per frame" cap.
const MaxSegmentsPerFrame = 1 << 7

// SegFlags packs seq_len (bits 0-6) and the terminating bit (bit 7)
// into one wire byte, mirroring the Rust original's SeqIndicator.
type SegFlags uint8

func NewSegFlags(seqLen SeqNum, terminating bool) SegFlags {
	f := SegFlags(seqLen & (MaxSegmentsPerFrame - 1))
	if terminating {
		f |= 1 << 7
	}
	return f
}

func (f SegFlags) SeqLen() SeqNum      { return SeqNum(f & (MaxSegmentsPerFrame - 1)) }
func (f SegFlags) Terminating() bool   { return f&(1<<7) != 0 }
func (f SegFlags) WithTerminating() SegFlags { return f | (1 << 7) }

// SegmentOverhead is the fixed wire size of a Segment header
// (frame_id + seq_idx + seq_flags) ahead of its payload.
const SegmentOverhead = 4 + 1 + 1

// Segment is the fragment actually carried in one packet payload,
//
type Segment struct {
	FrameId  FrameId
	SeqIdx   SeqNum
	SeqFlags SegFlags
	Data     []byte
}

// Terminating builds an empty terminating segment for the given frame,
// emitted by Segmenter.Close when no bytes are buffered.
func Terminating(frameID FrameId) Segment {
	return Segment{FrameId: frameID, SeqIdx: 0, SeqFlags: NewSegFlags(1, true)}
}

// Encode serializes the segment header and payload.
func (s Segment) Encode() []byte {
	out := make([]byte, SegmentOverhead+len(s.Data))
	binary.BigEndian.PutUint32(out[0:4], uint32(s.FrameId))
	out[4] = byte(s.SeqIdx)
	out[5] = byte(s.SeqFlags)
	copy(out[6:], s.Data)
	return out
}

// DecodeSegment is the inverse of Segment.Encode.
func DecodeSegment(raw []byte) (Segment, error) {
	if len(raw) < SegmentOverhead {
		return Segment{}, fmt.Errorf("session: truncated segment header (%d bytes)", len(raw))
	}
	return Segment{
		FrameId:  FrameId(binary.BigEndian.Uint32(raw[0:4])),
		SeqIdx:   SeqNum(raw[4]),
		SeqFlags: SegFlags(raw[5]),
		Data:     append([]byte(nil), raw[6:]...),
	}, nil
}
