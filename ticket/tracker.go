package ticket

import (
	"fmt"
	"sync"

	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
)

// channelState is the tracker's per-channel bookkeeping: the running
// unrealized-outgoing reservation, the next outgoing ticket index, and
// the set of acknowledged-but-not-yet-redeemed incoming tickets.
type channelState struct {
	mu sync.Mutex

	unrealizedOutgoing primitives.Balance
	nextIndex          uint64

	// incoming holds acknowledged tickets received on this (incoming)
	// channel, keyed by ticket index, until they are confirmed
	// redeemed and removed.
	incoming map[uint64]*AcknowledgedTicket

	// unacknowledged holds tickets extracted from forwarded packets
	// that are still waiting for the matching half-key to arrive from
	// the next hop "Ownership & lifecycle".
	unacknowledged map[uint64]*UnacknowledgedTicket
}

func newChannelState() *channelState {
	return &channelState{
		incoming:       make(map[uint64]*AcknowledgedTicket),
		unacknowledged: make(map[uint64]*UnacknowledgedTicket),
	}
}

// Tracker guarantees two invariants: in-flight outgoing ticket value
// never exceeds a channel's balance, and acknowledged tickets are
// redeemed at most once.
type Tracker struct {
	mu       sync.RWMutex
	channels map[primitives.ChannelId]*channelState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{channels: make(map[primitives.ChannelId]*channelState)}
}

func (t *Tracker) stateFor(id primitives.ChannelId) *channelState {
	t.mu.Lock()
	defer t.mu.Unlock()

	cs, ok := t.channels[id]
	if !ok {
		cs = newChannelState()
		t.channels[id] = cs
	}
	return cs
}

// IncomingUnrealized returns the sum of acknowledged, not-yet-redeemed
// ticket amounts tracked for the given incoming channel, used by the
// packet decoder's validate-and-replace sub-protocol to compute
// remaining_balance = channel.balance - incoming_unrealized(...).
func (t *Tracker) IncomingUnrealized(channelId primitives.ChannelId) primitives.Balance {
	cs := t.stateFor(channelId)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := primitives.Balance{}
	for _, ack := range cs.incoming {
		total = total.Add(ack.Ticket.Amount)
	}
	return total
}

// TrackAcknowledged registers a freshly acknowledged incoming ticket so
// it counts against incoming_unrealized and becomes eligible for
// redemption.
func (t *Tracker) TrackAcknowledged(channelId primitives.ChannelId, ack *AcknowledgedTicket) {
	cs := t.stateFor(channelId)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.incoming[ack.Ticket.Index] = ack
}

// DropChannel discards all per-channel bookkeeping, used when a channel
// closes or its epoch bumps.
func (t *Tracker) DropChannel(channelId primitives.ChannelId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.channels, channelId)
}

// TrackUnacknowledged registers an incoming ticket extracted from a
// forwarded packet, held until the matching
// half-key arrives from the next hop as an Acknowledgement.
func (t *Tracker) TrackUnacknowledged(channelId primitives.ChannelId, unack *UnacknowledgedTicket) {
	cs := t.stateFor(channelId)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.unacknowledged[unack.Ticket.Index] = unack
}

// Acknowledge combines a previously tracked unacknowledged ticket with
// the counterparty's half-key revealed by an incoming Acknowledgement.
// A non-winning ticket is dropped and reported as such (the relay
// earned nothing on it, by design of the probabilistic payment scheme);
// a winning ticket is promoted to AcknowledgedTicket and tracked under
// IncomingUnrealized/redemption's unacknowledged ->
// acknowledged transition.
func (t *Tracker) Acknowledge(channelId primitives.ChannelId, index uint64, counterpartyHalfKey [32]byte) (ack *AcknowledgedTicket, winning bool, err error) {
	cs := t.stateFor(channelId)

	cs.mu.Lock()
	unack, ok := cs.unacknowledged[index]
	if !ok {
		cs.mu.Unlock()
		return nil, false, fmt.Errorf("ticket: no tracked unacknowledged ticket with index %d in channel %s", index, channelId)
	}
	delete(cs.unacknowledged, index)
	cs.mu.Unlock()

	response := CombineHalfKeys(unack.OwnHalfKey, counterpartyHalfKey)
	if !IsWinning(unack.Ticket, response) {
		return nil, false, nil
	}

	ack = &AcknowledgedTicket{
		Ticket:       unack.Ticket,
		FullResponse: response,
		Signer:       unack.IssuerAddress,
		Status:       Untouched,
	}
	t.TrackAcknowledged(channelId, ack)
	return ack, true, nil
}

// MultihopTicket is the result of CreateMultihopTicket: an unsigned
// Ticket with its index already reserved, plus the release function the
// caller invokes if it ultimately decides not to send the ticket (e.g.
// signing failed), refunding the reservation.
type MultihopTicket struct {
	Ticket  Ticket
	Release func()
}

// CreateMultihopTicket mints an outgoing ticket for the given channel:
// checks price*path_position against the channel's remaining capacity,
// reserves that amount against unrealized_outgoing, and allocates the
// next ticket index.
func (t *Tracker) CreateMultihopTicket(
	channel chain.ChannelEntry,
	pathPosition uint32,
	winProb float64,
	price primitives.Balance,
) (*MultihopTicket, error) {

	required := primitives.Balance{}
	for i := uint32(0); i < pathPosition; i++ {
		required = required.Add(price)
	}

	cs := t.stateFor(channel.Id)
	cs.mu.Lock()

	available := channel.Balance.Sub(cs.unrealizedOutgoing)
	if required.Cmp(available) > 0 {
		cs.mu.Unlock()
		return nil, ErrOutOfFunds
	}

	cs.unrealizedOutgoing = cs.unrealizedOutgoing.Add(required)
	// channel.TicketIndex is the chain-confirmed index; a freshly
	// created channelState (first mint on this channel, or a restart
	// that lost the in-memory counter) must not start minting from 0
	// when the channel already has on-chain history.
	if channel.TicketIndex > cs.nextIndex {
		cs.nextIndex = channel.TicketIndex
	}
	index := cs.nextIndex
	cs.nextIndex++
	cs.mu.Unlock()

	released := false
	var releaseMu sync.Mutex
	release := func() {
		releaseMu.Lock()
		defer releaseMu.Unlock()
		if released {
			return
		}
		released = true
		cs.mu.Lock()
		cs.unrealizedOutgoing = cs.unrealizedOutgoing.Sub(required)
		cs.mu.Unlock()
	}

	tk := Ticket{
		ChannelId:    channel.Id,
		Amount:       price,
		Index:        index,
		IndexOffset:  1,
		ChannelEpoch: channel.Epoch,
		WinProb:      winProb,
	}

	return &MultihopTicket{Ticket: tk, Release: release}, nil
}
