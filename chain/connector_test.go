package chain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// fakeStream is a minimal preloaded stream used to drive Connect in
// tests: it yields every preloaded item once, then blocks until the
// context is canceled.
type fakeStream[T any] struct {
	mu    sync.Mutex
	items []T
}

func (s *fakeStream[T]) Next(ctx context.Context) (T, error) {
	s.mu.Lock()
	if len(s.items) > 0 {
		item := s.items[0]
		s.items = s.items[1:]
		s.mu.Unlock()
		return item, nil
	}
	s.mu.Unlock()

	var zero T
	<-ctx.Done()
	return zero, ctx.Err()
}

func (s *fakeStream[T]) Close() error { return nil }

type fakeIndexer struct {
	accounts int
	channels int

	accountStream *fakeStream[AccountEvent]
	channelStream *fakeStream[ChannelEvent]
	valueStream   *fakeStream[ValueEvent]
}

func (f *fakeIndexer) CountAccounts(ctx context.Context) (uint64, error) {
	return uint64(f.accounts), nil
}

func (f *fakeIndexer) CountChannels(ctx context.Context) (uint64, error) {
	return uint64(f.channels), nil
}

func (f *fakeIndexer) SubscribeAccounts(ctx context.Context) (AccountStream, error) {
	return f.accountStream, nil
}

func (f *fakeIndexer) SubscribeChannels(ctx context.Context) (ChannelStream, error) {
	return f.channelStream, nil
}

func (f *fakeIndexer) SubscribeValues(ctx context.Context) (ValueStream, error) {
	return f.valueStream, nil
}

type fakeSequencer struct {
	mu      sync.Mutex
	started bool
}

func (f *fakeSequencer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return ErrInvalidState
	}
	f.started = true
	return nil
}

func (f *fakeSequencer) EnqueueTransaction(ctx context.Context, req TxRequest, confirmTimeout time.Duration) (*PendingTx, error) {
	p := NewPendingTx()
	p.ResolveSubmitted(nil)
	p.ResolveConfirmed(Receipt{Success: true}, nil)
	return p, nil
}

func testAddr(b byte) primitives.Address {
	var a primitives.Address
	a[0] = b
	return a
}

func testPacketKey(b byte) primitives.OffchainPublicKey {
	var k primitives.OffchainPublicKey
	k[0] = b
	return k
}

func TestConnectorConnectReachesReady(t *testing.T) {
	backend := makeTestBackend(t)

	src, dst := testAddr(1), testAddr(2)
	channelEntry := ChannelEntry{
		Id:          primitives.NewChannelId(src, dst),
		Source:      src,
		Destination: dst,
		Balance:     primitives.NewBalance(500),
		Status:      primitives.ChannelOpen,
	}
	accountEntry := AccountEntry{
		ChainAddr: src,
		PacketKey: testPacketKey(9),
		KeyId:     1,
		Announced: true,
	}

	indexer := &fakeIndexer{
		accounts:      1,
		channels:      1,
		accountStream: &fakeStream[AccountEvent]{items: []AccountEvent{{Entry: accountEntry}}},
		channelStream: &fakeStream[ChannelEvent]{items: []ChannelEvent{{Entry: channelEntry}}},
		valueStream:   &fakeStream[ValueEvent]{},
	}
	seq := &fakeSequencer{}

	conn := NewConnector(Config{TxConfirmTimeout: time.Second}, indexer, backend, seq, clock.NewTestClock(time.Unix(0, 0)))

	sub, id := conn.Subscribe()
	defer conn.Unsubscribe(id)

	err := conn.Connect(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.True(t, seq.started)

	var gotAnnouncement, gotOpened bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			switch ev.Kind {
			case EventAnnouncement:
				gotAnnouncement = true
			case EventChannelOpened:
				gotOpened = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast event")
		}
	}
	require.True(t, gotAnnouncement)
	require.True(t, gotOpened)

	entry, err := conn.ChannelByParties(src, dst)
	require.NoError(t, err)
	require.Equal(t, channelEntry.Id, entry.Id)
}

func TestConnectorDoubleConnectFails(t *testing.T) {
	backend := makeTestBackend(t)

	indexer := &fakeIndexer{
		accountStream: &fakeStream[AccountEvent]{},
		channelStream: &fakeStream[ChannelEvent]{},
		valueStream:   &fakeStream[ValueEvent]{},
	}
	seq := &fakeSequencer{}

	conn := NewConnector(Config{TxConfirmTimeout: time.Second}, indexer, backend, seq, clock.NewTestClock(time.Unix(0, 0)))

	require.NoError(t, conn.Connect(context.Background(), time.Second))
	err := conn.Connect(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConnectorConnectTimeout(t *testing.T) {
	backend := makeTestBackend(t)

	indexer := &fakeIndexer{
		accounts:      1,
		accountStream: &fakeStream[AccountEvent]{},
		channelStream: &fakeStream[ChannelEvent]{},
		valueStream:   &fakeStream[ValueEvent]{},
	}
	seq := &fakeSequencer{}

	conn := NewConnector(Config{TxConfirmTimeout: time.Second}, indexer, backend, seq, clock.NewTestClock(time.Unix(0, 0)))

	err := conn.Connect(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrConnectionTimeout)
}
