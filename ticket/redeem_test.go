package ticket

import (
	"context"
	"sync"
	"testing"

	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []uint64
	failIndex map[uint64]bool
}

func (f *fakeSubmitter) SubmitRedemption(ctx context.Context, channelId primitives.ChannelId, ack *AcknowledgedTicket) ([32]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failIndex[ack.Ticket.Index] {
		return [32]byte{}, errTestSubmitFailed
	}

	f.submitted = append(f.submitted, ack.Ticket.Index)
	var hash [32]byte
	hash[0] = byte(ack.Ticket.Index + 1)
	return hash, nil
}

var errTestSubmitFailed = errTestSentinel("submit failed")

type errTestSentinel string

func (e errTestSentinel) Error() string { return string(e) }

func trackTickets(tr *Tracker, channelId primitives.ChannelId, n int, statuses ...Status) {
	for i := 0; i < n; i++ {
		status := Untouched
		if i < len(statuses) {
			status = statuses[i]
		}
		tr.TrackAcknowledged(channelId, &AcknowledgedTicket{
			Ticket: Ticket{ChannelId: channelId, Index: uint64(i), Amount: primitives.NewBalance(10)},
			Status: status,
		})
	}
}

func TestRedeemTicketsInChannelSkipsNonUntouched(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId
	channelId[0] = 1

	trackTickets(tr, channelId, 3, Untouched, BeingAggregated, BeingRedeemed)

	sub := &fakeSubmitter{}
	results := tr.RedeemTicketsInChannel(context.Background(), channelId, false, sub)

	require.Len(t, results, 1)
	require.Equal(t, uint64(0), results[0].Index)
	require.NoError(t, results[0].Err)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Equal(t, []uint64{0}, sub.submitted)
}

func TestRedeemTicketsInChannelHandlesSubmitFailure(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId
	channelId[0] = 2

	trackTickets(tr, channelId, 2)

	sub := &fakeSubmitter{failIndex: map[uint64]bool{0: true}}
	results := tr.RedeemTicketsInChannel(context.Background(), channelId, false, sub)

	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
}

func TestRedeemTicketDoubleRedeemFails(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId
	channelId[0] = 3
	trackTickets(tr, channelId, 1)

	sub := &fakeSubmitter{}
	res, err := tr.RedeemTicket(context.Background(), channelId, 0, sub)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	_, err = tr.RedeemTicket(context.Background(), channelId, 0, sub)
	require.ErrorIs(t, err, ErrWrongTicketState)
}

type fakeLister struct {
	channels []chain.ChannelEntry
}

func (f *fakeLister) IncomingChannels(ctx context.Context) ([]chain.ChannelEntry, error) {
	return f.channels, nil
}

func TestRedeemAllWalksEveryIncomingChannel(t *testing.T) {
	tr := NewTracker()

	var ch1, ch2 primitives.ChannelId
	ch1[0], ch2[0] = 1, 2
	trackTickets(tr, ch1, 2)
	trackTickets(tr, ch2, 3)

	lister := &fakeLister{channels: []chain.ChannelEntry{{Id: ch1}, {Id: ch2}}}
	sub := &fakeSubmitter{}

	results, err := tr.RedeemAll(context.Background(), false, lister, sub)
	require.NoError(t, err)
	require.Len(t, results, 5)
}
