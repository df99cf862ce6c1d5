package session

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// RetransmitSink is where a Retransmitter re-sends a frame's segments
// once it decides retransmission is due's "sender
// retransmits frames not acknowledged within a window".
type RetransmitSink interface {
	ResendFrame(frameID FrameId)
}

// ControlSink is where a Retransmitter emits the wire control
// messages Request and Acknowledge.
type ControlSink interface {
	SendRequest(RetransmissionRequest)
	SendAcknowledge(FrameAcknowledge)
}

// gapThreshold is how long a Partial-mode receiver waits after first
// observing a gap in a frame older than a threshold before it emits a
// Request.
const gapThreshold = 200 * time.Millisecond

// ackWindow is how long a Full-mode sender waits for an Acknowledge
// before retransmitting a frame ("sender
// retransmits frames not acknowledged within a window").
const ackWindow = 2 * time.Second

// Retransmitter drives the selective-retransmission control plane for
// one direction of a session: the skip-delay queue schedules
// NACK-threshold and ACK-window timers, and AckMode decides which of
// those timers are armed at all. Grounded on
// original_source/protocols/session/src/utils/skip_queue.rs's own doc
// comment ("Used for retransmission timers") for the pairing of
// SkipQueue with this exact role.
type Retransmitter struct {
	mode AckMode

	acked     map[FrameId]struct{}
	completed map[FrameId]struct{}

	gapTimers *SkipQueue[FrameId]
	ackTimers *SkipQueue[FrameId]

	control ControlSink
	clock   clock.Clock
}

// NewRetransmitter builds a Retransmitter for the given AckMode.
func NewRetransmitter(mode AckMode, clk clock.Clock, control ControlSink) *Retransmitter {
	r := &Retransmitter{
		mode:      mode,
		acked:     make(map[FrameId]struct{}),
		completed: make(map[FrameId]struct{}),
		control:   control,
		clock:     clk,
	}
	if mode.WantsNack() {
		r.gapTimers = NewSkipQueue[FrameId](clk, 256)
	}
	if mode.WantsAck() {
		r.ackTimers = NewSkipQueue[FrameId](clk, 256)
	}
	return r
}

// Close releases the Retransmitter's background timer goroutines.
func (r *Retransmitter) Close() {
	if r.gapTimers != nil {
		r.gapTimers.Close()
	}
	if r.ackTimers != nil {
		r.ackTimers.Close()
	}
}

// ObserveGap is called by the receive side whenever a frame is seen
// incomplete; it (re)arms that frame's NACK threshold timer.
func (r *Retransmitter) ObserveGap(frameID FrameId) {
	if r.gapTimers == nil {
		return
	}
	_ = r.gapTimers.New(frameID, r.clock.Now().Add(gapThreshold))
}

// ObserveComplete cancels any pending gap timer for frameID (it
// completed before the threshold fired) and, in Full/Both mode, emits
// the frame's Acknowledge control message.
func (r *Retransmitter) ObserveComplete(frameID FrameId) {
	if r.gapTimers != nil {
		r.gapTimers.Cancel(frameID)
	}
	if r.mode.WantsAck() {
		r.control.SendAcknowledge(FrameAcknowledge{FrameId: frameID})
	}
}

// SendFrame is called by the send side when a frame's segments have
// been flushed; in Full/Both mode it arms that frame's ACK window
// timer.
func (r *Retransmitter) SendFrame(frameID FrameId) {
	if r.ackTimers == nil {
		return
	}
	_ = r.ackTimers.New(frameID, r.clock.Now().Add(ackWindow))
}

// ObserveAcknowledge cancels frameID's ACK window timer: the peer
// confirmed receipt, so no retransmission is needed.
func (r *Retransmitter) ObserveAcknowledge(frameID FrameId) {
	if r.ackTimers != nil {
		r.ackTimers.Cancel(frameID)
	}
}

// GapTimeouts yields frame ids whose NACK threshold fired without the
// frame completing; the caller should request missingSeqIndices(id)
// from its own reassembly state and emit a RetransmissionRequest.
func (r *Retransmitter) GapTimeouts() <-chan FrameId {
	if r.gapTimers == nil {
		closed := make(chan FrameId)
		close(closed)
		return closed
	}
	return r.gapTimers.Output()
}

// AckTimeouts yields frame ids whose ACK window fired without an
// Acknowledge arriving; the caller should resend the frame.
func (r *Retransmitter) AckTimeouts() <-chan FrameId {
	if r.ackTimers == nil {
		closed := make(chan FrameId)
		close(closed)
		return closed
	}
	return r.ackTimers.Output()
}
