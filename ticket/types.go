package ticket

import "github.com/hoprnet/hopr-relay-core/primitives"

// UnacknowledgedTicket is a Ticket plus the relay's own half of the
// SPHINX key exchange and the issuer's address, held until the
// matching half-key arrives from the next hop.
type UnacknowledgedTicket struct {
	Ticket        Ticket
	OwnHalfKey    [32]byte
	IssuerAddress primitives.Address
}

// Status is the redemption state of an AcknowledgedTicket:
// Untouched -> BeingAggregated{start,end} -> BeingRedeemed{tx_hash}
// -> terminal (removed on confirmation). Transitions are one-way.
type Status uint8

const (
	Untouched Status = iota
	BeingAggregated
	BeingRedeemed
)

func (s Status) String() string {
	switch s {
	case Untouched:
		return "Untouched"
	case BeingAggregated:
		return "BeingAggregated"
	case BeingRedeemed:
		return "BeingRedeemed"
	default:
		return "Unknown"
	}
}

// EmptyTxHash is the placeholder used for BeingRedeemed tickets whose
// redemption transaction has not yet been published on-chain.
var EmptyTxHash [32]byte

// AcknowledgedTicket is an UnacknowledgedTicket completed with the
// counterparty's half-key, ready for validation and eventual
// redemption.
type AcknowledgedTicket struct {
	Ticket        Ticket
	FullResponse  [32]byte
	VrfParams     []byte
	Signer        primitives.Address

	Status          Status
	AggregationSpan *AggregationSpan
	TxHash          [32]byte
}

// AggregationSpan records the index range an aggregated ticket covers,
// populated only while Status == BeingAggregated.
type AggregationSpan struct {
	Start, End uint64
}

// IsAggregated reports whether this ticket resulted from aggregating a
// span of underlying tickets into one.
func (t *AcknowledgedTicket) IsAggregated() bool {
	return t.AggregationSpan != nil
}

// SetBeingRedeemed implements the one-way Untouched/BeingRedeemed
// transition rules: only an Untouched ticket may start redemption, and
// a tx hash already recorded may never be changed, unset, or
// overwritten with a different one.
func (t *AcknowledgedTicket) SetBeingRedeemed(txHash [32]byte) error {
	switch t.Status {
	case Untouched:
		// falls through to the transition below
	case BeingAggregated:
		return ErrWrongTicketState
	case BeingRedeemed:
		// A tx hash already recorded may never be overwritten, whether
		// by resetting it to empty or by setting a different non-empty
		// hash over it: both are the hash-overwrite race this guard
		// exists to prevent.
		if t.TxHash != EmptyTxHash {
			return ErrInvalidArguments
		}
	}

	t.Status = BeingRedeemed
	t.TxHash = txHash
	return nil
}

// RedeemedTicket is an AcknowledgedTicket whose redemption transaction
// has been confirmed on-chain.
type RedeemedTicket struct {
	Ticket  AcknowledgedTicket
	TxHash  [32]byte
}
