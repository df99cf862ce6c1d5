package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/stretchr/testify/require"
)

type sentTx struct {
	nonce uint64
}

type fakeTxClient struct {
	mu sync.Mutex

	nonce      uint64
	failNonce  map[uint64]bool // nonces that report ErrNonceAlreadyUsed once
	failOther  map[uint64]bool // nonces that fail with a non-nonce error
	sent       []sentTx
	confirmErr error
}

func (f *fakeTxClient) Send(ctx context.Context, req chain.TxRequest) ([32]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNonce[req.Nonce] {
		delete(f.failNonce, req.Nonce)
		return [32]byte{}, chain.ErrNonceAlreadyUsed
	}
	if f.failOther[req.Nonce] {
		return [32]byte{}, errors.New("broadcast rejected")
	}

	f.sent = append(f.sent, sentTx{nonce: req.Nonce})
	var hash [32]byte
	hash[0] = byte(req.Nonce)
	return hash, nil
}

func (f *fakeTxClient) Confirm(ctx context.Context, txHash [32]byte) (chain.Receipt, error) {
	return chain.Receipt{TxHash: txHash, Success: true}, f.confirmErr
}

func (f *fakeTxClient) Nonce(ctx context.Context, addr primitives.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func newTestSequencer(client *fakeTxClient) *Sequencer {
	var addr primitives.Address
	addr[0] = 0x01
	return New(Config{Address: addr, TxClient: client})
}

func TestSequencerStrictlyIncreasingNonces(t *testing.T) {
	client := &fakeTxClient{nonce: 10}
	seq := newTestSequencer(client)
	require.NoError(t, seq.Start())
	defer seq.Stop()

	var pendings []*chain.PendingTx
	for i := 0; i < 3; i++ {
		p, err := seq.EnqueueTransaction(context.Background(), chain.TxRequest{}, time.Second)
		require.NoError(t, err)
		pendings = append(pendings, p)
	}

	for _, p := range pendings {
		require.NoError(t, p.Submitted(context.Background()))
		_, err := p.Confirmed(context.Background())
		require.NoError(t, err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 3)
	require.Equal(t, uint64(10), client.sent[0].nonce)
	require.Equal(t, uint64(11), client.sent[1].nonce)
	require.Equal(t, uint64(12), client.sent[2].nonce)
}

func TestSequencerRetriesOnNonceReuse(t *testing.T) {
	client := &fakeTxClient{
		nonce:     5,
		failNonce: map[uint64]bool{5: true},
	}
	seq := newTestSequencer(client)
	require.NoError(t, seq.Start())
	defer seq.Stop()

	p, err := seq.EnqueueTransaction(context.Background(), chain.TxRequest{}, time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Submitted(context.Background()))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 1)
	require.Equal(t, uint64(5), client.sent[0].nonce)
}

func TestSequencerDiscardsFailedRequestAndAdvances(t *testing.T) {
	client := &fakeTxClient{
		nonce:     1,
		failOther: map[uint64]bool{1: true},
	}
	seq := newTestSequencer(client)
	require.NoError(t, seq.Start())
	defer seq.Stop()

	failing, err := seq.EnqueueTransaction(context.Background(), chain.TxRequest{}, time.Second)
	require.NoError(t, err)
	require.NoError(t, failing.Submitted(context.Background()))
	_, err = failing.Confirmed(context.Background())
	require.Error(t, err)

	next, err := seq.EnqueueTransaction(context.Background(), chain.TxRequest{}, time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Submitted(context.Background()))
	_, err = next.Confirmed(context.Background())
	require.NoError(t, err)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sent, 1)
	require.Equal(t, uint64(2), client.sent[0].nonce)
}

func TestSequencerStartOnlyOnce(t *testing.T) {
	client := &fakeTxClient{}
	seq := newTestSequencer(client)
	require.NoError(t, seq.Start())
	defer seq.Stop()

	require.ErrorIs(t, seq.Start(), ErrAlreadyStarted)
}
