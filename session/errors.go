package session

import "github.com/go-errors/errors"

var (
	// ErrBrokenPipe is returned by Segmenter.Write/Flush/Close once the
	// segmenter has been closed
	ErrBrokenPipe = errors.New("session: broken pipe")

	// ErrQuotaExceeded is returned once the frame-id space wraps back
	// to its reserved zero value: further writes fail QuotaExceeded.
	ErrQuotaExceeded = errors.New("session: frame-id quota exceeded")

	// ErrNotConnected mirrors the Rust original's SkipDelayQueue
	// behavior when a sender has no backing queue left (every receiver
	// dropped before close), per
	// original_source/protocols/session/src/utils/skip_queue.rs.
	ErrNotConnected = errors.New("session: not connected")
)
