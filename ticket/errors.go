package ticket

import "github.com/go-errors/errors"

var (
	// ErrWrongTicketState is returned when a state transition is
	// attempted from a state that forbids it.
	ErrWrongTicketState = errors.New("ticket: wrong ticket state for requested transition")

	// ErrInvalidArguments is returned when an already-set transaction
	// hash would be overwritten or unset.
	ErrInvalidArguments = errors.New("ticket: invalid arguments")

	// ErrOutOfFunds is returned by create_multihop_ticket when minting
	// would oversubscribe the outgoing channel.
	ErrOutOfFunds = errors.New("ticket: out of funds")

	// ErrChannelNotFound mirrors chain.ErrChannelNotFound for callers
	// that only depend on the ticket package.
	ErrChannelNotFound = errors.New("ticket: channel not found")

	// ErrNotAWinningTicket is returned when redemption is attempted on
	// a ticket that does not satisfy the VRF winning condition.
	ErrNotAWinningTicket = errors.New("ticket: not a winning ticket")

	// ErrTicketValidation covers any failure of the validate-and-replace
	// sub-protocol in the packet decoder (signature, epoch, index,
	// amount, or winning-probability mismatch).
	ErrTicketValidation = errors.New("ticket: validation failed")
)
