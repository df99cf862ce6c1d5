package chain

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay-core/primitives"
)

// AccountEvent is one item on the indexer's account stream.
type AccountEvent struct {
	Entry AccountEntry
}

// ChannelEvent is one item on the indexer's channel stream.
type ChannelEvent struct {
	Entry ChannelEntry
}

// ValueEvent is one item on the indexer's oracle-value stream: exactly
// one of TicketPrice/MinWinProb is set per event.
type ValueEvent struct {
	TicketPrice *primitives.Balance
	MinWinProb  *float64
}

// AccountStream is a lazily-opened, ordered stream of account events. It
// is consumed, never implemented, by this module: the concrete stream is
// provided by an external indexer client
type AccountStream interface {
	Next(ctx context.Context) (AccountEvent, error)
	Close() error
}

// ChannelStream is the channel-event analogue of AccountStream.
type ChannelStream interface {
	Next(ctx context.Context) (ChannelEvent, error)
	Close() error
}

// ValueStream streams oracle value changes (ticket price, minimum
// winning probability).
type ValueStream interface {
	Next(ctx context.Context) (ValueEvent, error)
	Close() error
}

// TxRequest is an outgoing, unsigned transaction request handed to the
// indexer's transaction client for broadcast.
type TxRequest struct {
	To      primitives.Address
	Data    []byte
	Nonce   uint64
	ChainID uint64
}

// Receipt is the confirmation result of a submitted transaction.
type Receipt struct {
	TxHash      [32]byte
	BlockNumber uint64
	Success     bool
}

// TxClient is the external transaction-submission collaborator: it
// broadcasts signed transactions and reports confirmation, and is the
// sole authority on the account's current nonce.
type TxClient interface {
	// Send broadcasts a transaction already assigned Nonce, returning
	// its hash once accepted into the mempool (not confirmed). A
	// nonce-already-used condition must be reported via
	// ErrNonceAlreadyUsed so the sequencer can resynchronize.
	Send(ctx context.Context, req TxRequest) (txHash [32]byte, err error)

	// Confirm blocks until the transaction identified by txHash is
	// confirmed or ctx is canceled.
	Confirm(ctx context.Context, txHash [32]byte) (Receipt, error)

	// Nonce returns the next usable nonce for addr, as observed by the
	// chain (not the sequencer's in-memory counter).
	Nonce(ctx context.Context, addr primitives.Address) (uint64, error)
}

// Indexer is the external collaborator the connector subscribes
// against: synchronous counters plus the three lazily-opened streams,
//'s construction inputs.
type Indexer interface {
	CountAccounts(ctx context.Context) (uint64, error)
	CountChannels(ctx context.Context) (uint64, error)

	SubscribeAccounts(ctx context.Context) (AccountStream, error)
	SubscribeChannels(ctx context.Context) (ChannelStream, error)
	SubscribeValues(ctx context.Context) (ValueStream, error)
}

// ErrNonceAlreadyUsed is returned by TxClient.Send when the supplied
// nonce has already been consumed by another transaction from the same
// account, prompting the sequencer to resynchronize from TxClient.Nonce
// and retry the current request.
var ErrNonceAlreadyUsed = errors.New("chain: nonce already used")
