package ticket

import (
	"context"
	"fmt"
	"sort"

	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
)

// IncomingChannelLister enumerates every channel for which this node is
// the destination, used by RedeemAll to walk incoming channels
// serially, since the underlying transactions are sequential.
type IncomingChannelLister interface {
	IncomingChannels(ctx context.Context) ([]chain.ChannelEntry, error)
}

// RedeemSubmitter submits a redemption transaction for one acknowledged
// ticket and returns its transaction hash once accepted for broadcast.
type RedeemSubmitter interface {
	SubmitRedemption(ctx context.Context, channelId primitives.ChannelId, ack *AcknowledgedTicket) ([32]byte, error)
}

// RedeemResult reports the outcome of attempting to redeem one ticket.
type RedeemResult struct {
	ChannelId primitives.ChannelId
	Index     uint64
	TxHash    [32]byte
	Err       error
}

// RedeemTicketsInChannel redeems every Untouched (optionally: only
// aggregated) acknowledged ticket tracked for one channel. The write
// lock that flips tickets to BeingRedeemed is held only across that
// batch of in-memory state flips, never across the transaction
// submissions that follow
func (t *Tracker) RedeemTicketsInChannel(ctx context.Context, channelId primitives.ChannelId, onlyAggregated bool, submitter RedeemSubmitter) []RedeemResult {
	cs := t.stateFor(channelId)

	var toRedeem []*AcknowledgedTicket
	cs.mu.Lock()
	for _, ack := range cs.incoming {
		if ack.Status != Untouched {
			continue
		}
		if onlyAggregated && !ack.IsAggregated() {
			continue
		}
		if err := ack.SetBeingRedeemed(EmptyTxHash); err != nil {
			log.Errorf("failed to mark ticket %d in channel %s as being redeemed: %v",
				ack.Ticket.Index, channelId, err)
			continue
		}
		toRedeem = append(toRedeem, ack)
	}
	cs.mu.Unlock()

	// Submit in ticket-index order; cs.incoming is a map.
	sort.Slice(toRedeem, func(i, j int) bool {
		return toRedeem[i].Ticket.Index < toRedeem[j].Ticket.Index
	})

	results := make([]RedeemResult, 0, len(toRedeem))
	for _, ack := range toRedeem {
		txHash, err := submitter.SubmitRedemption(ctx, channelId, ack)
		if err != nil {
			log.Warnf("failed to submit redemption for ticket %d in channel %s: %v",
				ack.Ticket.Index, channelId, err)
			results = append(results, RedeemResult{ChannelId: channelId, Index: ack.Ticket.Index, Err: err})
			continue
		}

		cs.mu.Lock()
		_ = ack.SetBeingRedeemed(txHash)
		cs.mu.Unlock()

		results = append(results, RedeemResult{ChannelId: channelId, Index: ack.Ticket.Index, TxHash: txHash})
	}

	return results
}

// RedeemAll walks every incoming channel serially and redeems its
// eligible tickets "redeem_all".
func (t *Tracker) RedeemAll(ctx context.Context, onlyAggregated bool, lister IncomingChannelLister, submitter RedeemSubmitter) ([]RedeemResult, error) {
	channels, err := lister.IncomingChannels(ctx)
	if err != nil {
		return nil, err
	}

	var all []RedeemResult
	for _, ch := range channels {
		all = append(all, t.RedeemTicketsInChannel(ctx, ch.Id, onlyAggregated, submitter)...)
	}
	return all, nil
}

// RedeemTicket redeems a single tracked ticket by index. The fast path
// requires it to currently be Untouched; any other state fails
// WrongTicketState.
func (t *Tracker) RedeemTicket(ctx context.Context, channelId primitives.ChannelId, index uint64, submitter RedeemSubmitter) (RedeemResult, error) {
	cs := t.stateFor(channelId)

	cs.mu.Lock()
	ack, ok := cs.incoming[index]
	if !ok {
		cs.mu.Unlock()
		return RedeemResult{}, fmt.Errorf("ticket: no tracked ticket with index %d in channel %s", index, channelId)
	}
	if ack.Status != Untouched {
		cs.mu.Unlock()
		return RedeemResult{}, ErrWrongTicketState
	}
	if err := ack.SetBeingRedeemed(EmptyTxHash); err != nil {
		cs.mu.Unlock()
		return RedeemResult{}, err
	}
	cs.mu.Unlock()

	txHash, err := submitter.SubmitRedemption(ctx, channelId, ack)
	if err != nil {
		return RedeemResult{ChannelId: channelId, Index: index, Err: err}, nil
	}

	cs.mu.Lock()
	_ = ack.SetBeingRedeemed(txHash)
	cs.mu.Unlock()

	return RedeemResult{ChannelId: channelId, Index: index, TxHash: txHash}, nil
}
