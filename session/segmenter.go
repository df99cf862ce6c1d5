package session

// SegmentSink is the sending side a Segmenter pushes finished segments
// into. It is the external collaborator boundary (the actual wire
// transport, or the packet decoder's outgoing path); the segmenter
// itself holds no notion of how a segment reaches the peer.
type SegmentSink interface {
	SendSegment(Segment) error
}

// Segmenter turns a stream of application writes into fixed-size
// Segments grouped into Frames, the write side of framing.
// Translated from original_source/protocols/session/src/processing/
// segmenter.rs's futures::io::AsyncWrite adaptor into a synchronous Go
// io.Writer-shaped struct with an explicit Flush/Close (this package
// has no futures runtime to adapt to; the CPU-worker pool and
// goroutine-per-session model used elsewhere in this module make a
// blocking call here the idiomatic translation).
type Segmenter struct {
	sink SegmentSink

	payloadCapacity int // C - SegmentOverhead, the max bytes per segment
	frameSize       int

	segBuffer     []byte
	readySegments []Segment

	nextFrameId     FrameId
	currentFrameLen int
	closed          bool

	flushEachSegment       bool
	sendTerminatingSegment bool
}

// NewSegmenter builds a Segmenter. mtu is the packet payload MTU;
// frameSize is clamped into
// [mtu-SegmentOverhead, (mtu-SegmentOverhead)*MaxSegmentsPerFrame],
// mirroring the Rust constructor's clamp.
func NewSegmenter(sink SegmentSink, mtu, frameSize int, sendTerminatingSegment, flushEachSegment bool) *Segmenter {
	payloadCapacity := mtu - SegmentOverhead
	if payloadCapacity <= 0 {
		payloadCapacity = 1
	}

	min := payloadCapacity
	max := payloadCapacity * MaxSegmentsPerFrame
	if frameSize < min {
		frameSize = min
	} else if frameSize > max {
		frameSize = max
	}

	return &Segmenter{
		sink:                   sink,
		payloadCapacity:        payloadCapacity,
		frameSize:              frameSize,
		segBuffer:              make([]byte, 0, payloadCapacity),
		readySegments:          make([]Segment, 0, frameSize/mtu+1),
		nextFrameId:            1,
		sendTerminatingSegment: sendTerminatingSegment,
		flushEachSegment:       flushEachSegment,
	}
}

// Write buffers and segments p, flushing full frames as they complete.
// Per io.Writer's contract it either consumes all of p or returns an
// error; internally it loops over the Rust original's "write at most
// one chunk" step until the whole buffer has been accepted.
func (s *Segmenter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := s.writeChunk(p)
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

func (s *Segmenter) writeChunk(buf []byte) (int, error) {
	if s.closed {
		return 0, ErrBrokenPipe
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if s.nextFrameId == 0 {
		return 0, ErrQuotaExceeded
	}

	remainingInSegment := s.payloadCapacity - len(s.segBuffer)
	remainingInFrame := s.frameSize - s.currentFrameLen - len(s.segBuffer)
	n := len(buf)
	if remainingInSegment < n {
		n = remainingInSegment
	}
	if remainingInFrame < n {
		n = remainingInFrame
	}
	if n <= 0 {
		return 0, nil
	}

	s.segBuffer = append(s.segBuffer, buf[:n]...)

	switch {
	case s.currentFrameLen+len(s.segBuffer) == s.frameSize:
		s.completeSegment()
		if err := s.flushSegments(); err != nil {
			return n, err
		}
	case len(s.segBuffer) == s.payloadCapacity:
		s.completeSegment()
		if s.currentFrameLen == s.frameSize {
			if err := s.flushSegments(); err != nil {
				return n, err
			}
		}
	}

	return n, nil
}

// completeSegment moves the current segment buffer into the
// ready-segments list, resetting the buffer.
func (s *Segmenter) completeSegment() {
	data := make([]byte, len(s.segBuffer))
	copy(data, s.segBuffer)
	s.segBuffer = s.segBuffer[:0]

	s.currentFrameLen += len(data)
	s.readySegments = append(s.readySegments, Segment{FrameId: s.nextFrameId, Data: data})
}

// createTerminatingSegment marks the last ready segment as terminating,
// or appends an empty terminating segment if none is buffered, for the
// close-with-empty-buffer case.
func (s *Segmenter) createTerminatingSegment() {
	if len(s.readySegments) > 0 {
		last := &s.readySegments[len(s.readySegments)-1]
		last.SeqFlags = last.SeqFlags.WithTerminating()
		return
	}
	s.readySegments = append(s.readySegments, Terminating(s.nextFrameId))
}

// flushSegments assigns seq_idx/seq_flags now that seq_len is known,
// sends every ready segment to the sink, and (if any were sent)
// advances the frame id, per the Rust original's poll_flush_segments.
func (s *Segmenter) flushSegments() error {
	seqLen := len(s.readySegments)

	segments := s.readySegments
	s.readySegments = make([]Segment, 0, cap(segments))

	for i := range segments {
		segments[i].SeqIdx = SeqNum(i)
		segments[i].SeqFlags = NewSegFlags(SeqNum(seqLen), segments[i].SeqFlags.Terminating())
		if err := s.sink.SendSegment(segments[i]); err != nil {
			return err
		}
	}

	if seqLen > 0 {
		s.nextFrameId++
		s.currentFrameLen = 0
	}
	return nil
}

// Flush completes any buffered partial segment into a frame and sends
// everything accumulated so far.
func (s *Segmenter) Flush() error {
	if s.closed {
		return ErrBrokenPipe
	}
	if s.nextFrameId == 0 {
		return ErrQuotaExceeded
	}
	if len(s.segBuffer) > 0 {
		s.completeSegment()
	}
	return s.flushSegments()
}

// Close flushes any remaining buffered data, optionally emits a
// terminating segment, and marks the segmenter closed. Further writes
// fail ErrBrokenPipe.
func (s *Segmenter) Close() error {
	if s.closed {
		return ErrBrokenPipe
	}
	if s.nextFrameId == 0 {
		s.closed = true
		return nil
	}

	if len(s.segBuffer) > 0 {
		s.completeSegment()
	}
	if s.sendTerminatingSegment {
		s.createTerminatingSegment()
	}

	err := s.flushSegments()
	s.closed = true
	return err
}
