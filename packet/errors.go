package packet

import (
	"fmt"

	"github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay-core/primitives"
)

var (
	// ErrUndecodable covers any packet that fails to parse: a malformed
	// SPHINX envelope, a local CPU-pool overload (reported as local
	// overload rather than a cryptographic or protocol failure), or a
	// malformed plaintext body.
	ErrUndecodable = errors.New("packet: undecodable")

	// ErrReplay is returned when a packet's tag has already been seen
	// by the replay filter.
	ErrReplay = errors.New("packet: replay detected")

	// ErrChannelNotFound mirrors chain.ErrChannelNotFound at the packet
	// package boundary so callers that only depend on this package
	// don't need to import chain to test for it.
	ErrChannelNotFound = errors.New("packet: channel not found")

	// ErrKeyNotFound is returned when a peer or chain-address
	// resolution misses.
	ErrKeyNotFound = errors.New("packet: key not found")

	// ErrResolverError wraps a failure from an external resolver
	// collaborator (peer-id conversion, chain-address lookup) that
	// isn't itself one of the more specific sentinels above.
	ErrResolverError = errors.New("packet: resolver error")

	// ErrInvalidState is returned when the underlying router reports an
	// outgoing packet at ingress, a protocol violation: a packet being
	// decoded at ingress can never itself be outgoing.
	ErrInvalidState = errors.New("packet: invalid state")
)

// TicketValidationError reports a forwarded packet's ticket failing the
// validate-and-replace sub-protocol, carrying the previous-hop address
// so that repeat offenders can be penalized upstream.
type TicketValidationError struct {
	PreviousHop primitives.Address
	Err         error
}

func (e *TicketValidationError) Error() string {
	return fmt.Sprintf("packet: ticket validation failed for previous hop %s: %v", e.PreviousHop, e.Err)
}

func (e *TicketValidationError) Unwrap() error { return e.Err }
