package ticket

import (
	"testing"

	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/stretchr/testify/require"
)

func testChannel(balance uint64) chain.ChannelEntry {
	var id primitives.ChannelId
	id[0] = 0x42
	return chain.ChannelEntry{
		Id:      id,
		Balance: primitives.NewBalance(balance),
		Status:  primitives.ChannelOpen,
		Epoch:   1,
	}
}

func TestCreateMultihopTicketReservesBalance(t *testing.T) {
	tr := NewTracker()
	ch := testChannel(1000)

	mh, err := tr.CreateMultihopTicket(ch, 2, 0.5, primitives.NewBalance(300))
	require.NoError(t, err)
	require.Equal(t, uint64(0), mh.Ticket.Index)
	require.Equal(t, primitives.NewBalance(300), mh.Ticket.Amount)

	// 2 * 300 = 600 reserved; channel has 1000, so exactly 2*200 more
	// still fits but anything beyond that must not.
	_, err = tr.CreateMultihopTicket(ch, 2, 0.5, primitives.NewBalance(200))
	require.NoError(t, err)

	_, err = tr.CreateMultihopTicket(ch, 2, 0.5, primitives.NewBalance(1))
	require.ErrorIs(t, err, ErrOutOfFunds)
}

func TestCreateMultihopTicketIndexMonotonic(t *testing.T) {
	tr := NewTracker()
	ch := testChannel(1_000_000)

	var indices []uint64
	for i := 0; i < 5; i++ {
		mh, err := tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(10))
		require.NoError(t, err)
		indices = append(indices, mh.Ticket.Index)
	}

	for i := 1; i < len(indices); i++ {
		require.Greater(t, indices[i], indices[i-1])
	}
}

func TestCreateMultihopTicketSeedsIndexFromChannel(t *testing.T) {
	tr := NewTracker()
	ch := testChannel(1_000_000)
	ch.TicketIndex = 42

	mh, err := tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(10))
	require.NoError(t, err)
	require.Equal(t, uint64(42), mh.Ticket.Index)

	mh2, err := tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(10))
	require.NoError(t, err)
	require.Equal(t, uint64(43), mh2.Ticket.Index)

	// A later channel snapshot with a higher chain-confirmed index (the
	// node having restarted and lost its in-memory counter) must still
	// be honored rather than resuming from the stale local counter.
	ch.TicketIndex = 100
	mh3, err := tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(10))
	require.NoError(t, err)
	require.Equal(t, uint64(100), mh3.Ticket.Index)
}

func TestReleaseRefundsReservation(t *testing.T) {
	tr := NewTracker()
	ch := testChannel(100)

	mh, err := tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(100))
	require.NoError(t, err)

	_, err = tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(1))
	require.ErrorIs(t, err, ErrOutOfFunds)

	mh.Release()

	_, err = tr.CreateMultihopTicket(ch, 1, 1.0, primitives.NewBalance(100))
	require.NoError(t, err)
}

func TestIncomingUnrealizedSumsTrackedTickets(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId
	channelId[0] = 0x07

	for i := uint64(0); i < 3; i++ {
		tr.TrackAcknowledged(channelId, &AcknowledgedTicket{
			Ticket: Ticket{ChannelId: channelId, Index: i, Amount: primitives.NewBalance(50)},
			Status: Untouched,
		})
	}

	require.Equal(t, primitives.NewBalance(150), tr.IncomingUnrealized(channelId))
}
