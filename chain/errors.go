package chain

import "github.com/go-errors/errors"

var (
	// ErrConnectionTimeout is returned by Connect when the ready
	// threshold isn't reached before the caller-supplied timeout
	// elapses. Fatal: the connector must be reconstructed.
	ErrConnectionTimeout = errors.New("chain: connection timed out before sync threshold was reached")

	// ErrInvalidState is returned by Connect when called on an
	// already-connected (or already-failed) connector.
	ErrInvalidState = errors.New("chain: invalid state for requested operation")

	// ErrChannelNotFound is returned by channel lookups that miss both
	// the cache and the backend.
	ErrChannelNotFound = errors.New("chain: channel not found")

	// ErrKeyNotFound is returned when a chain-address/packet-key
	// resolution misses both caches and the backend.
	ErrKeyNotFound = errors.New("chain: key not found")

	// ErrTypeConversion is returned by send_tx when the underlying
	// client rejects the transaction request's shape.
	ErrTypeConversion = errors.New("chain: transaction request type conversion failed")
)
