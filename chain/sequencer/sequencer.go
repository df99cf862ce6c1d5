// Package sequencer totally orders outgoing transactions signed by a
// single node key, guaranteeing strictly increasing, gapless nonces
// even under concurrent submission.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
)

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

var (
	// ErrAlreadyStarted is returned by Start when called more than
	// once "start() must be called exactly once".
	ErrAlreadyStarted = errors.New("sequencer: already started")
)

// request is one enqueued transaction, carried on the single request
// channel the run loop drains in FIFO order. This mirrors the
// request-struct-with-embedded-result-channels idiom used throughout
// htlcswitch (e.g. chanCloseRequests, linkControl).
type request struct {
	txReq          chain.TxRequest
	confirmTimeout time.Duration
	pending        *chain.PendingTx
}

// Config carries the sequencer's construction inputs: the node's chain
// address (whose nonce is being sequenced) and the external
// transaction client used for broadcast, confirmation, and nonce
// resync.
type Config struct {
	Address  primitives.Address
	TxClient chain.TxClient
}

// Sequencer is the single-writer transaction pipeline. It satisfies
// chain.Sequencer.
type Sequencer struct {
	cfg Config

	requests chan request
	quit     chan struct{}

	startMu sync.Mutex
	started bool

	nonce      uint64
	nonceKnown bool
}

// New builds a Sequencer in the not-yet-started state.
func New(cfg Config) *Sequencer {
	return &Sequencer{
		cfg:      cfg,
		requests: make(chan request),
		quit:     make(chan struct{}),
	}
}

// Start launches the run loop. It must be called exactly once.
func (s *Sequencer) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	go s.run()
	return nil
}

// Stop terminates the run loop, failing any queued request that has not
// yet been submitted.
func (s *Sequencer) Stop() {
	close(s.quit)
}

// EnqueueTransaction implements chain.Sequencer. It returns immediately
// with a PendingTx; the caller awaits PendingTx.Submitted and
// PendingTx.Confirmed independently.
func (s *Sequencer) EnqueueTransaction(ctx context.Context, req chain.TxRequest, confirmTimeout time.Duration) (*chain.PendingTx, error) {
	pending := chain.NewPendingTx()

	select {
	case s.requests <- request{txReq: req, confirmTimeout: confirmTimeout, pending: pending}:
		return pending, nil
	case <-s.quit:
		return nil, errors.New("sequencer: stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the single goroutine that serializes all nonce assignment and
// submission. Requests are processed strictly in enqueue order; a
// nonce-reuse error causes the *current* request to be retried with a
// refreshed nonce rather than advancing to the next one.
func (s *Sequencer) run() {
	for {
		select {
		case req := <-s.requests:
			s.process(req)
		case <-s.quit:
			return
		}
	}
}

func (s *Sequencer) process(req request) {
	ctx := context.Background()

	for {
		if !s.nonceKnown {
			nonce, err := s.cfg.TxClient.Nonce(ctx, s.cfg.Address)
			if err != nil {
				req.pending.ResolveSubmitted(err)
				req.pending.ResolveConfirmed(chain.Receipt{}, err)
				return
			}
			s.nonce = nonce
			s.nonceKnown = true
		}

		txReq := req.txReq
		txReq.Nonce = s.nonce

		txHash, err := s.cfg.TxClient.Send(ctx, txReq)
		if err == nil {
			s.nonce++
			req.pending.ResolveSubmitted(nil)
			go s.awaitConfirmation(req, txHash)
			return
		}

		if err == chain.ErrNonceAlreadyUsed {
			log.Warnf("nonce %d already used for %s, resyncing", s.nonce, s.cfg.Address)
			s.nonceKnown = false
			continue
		}

		// Non-nonce error: the inner future fails immediately and the
		// burned nonce is not retried
		s.nonce++
		req.pending.ResolveSubmitted(nil)
		req.pending.ResolveConfirmed(chain.Receipt{}, err)
		return
	}
}

func (s *Sequencer) awaitConfirmation(req request, txHash [32]byte) {
	ctx, cancel := context.WithTimeout(context.Background(), req.confirmTimeout)
	defer cancel()

	receipt, err := s.cfg.TxClient.Confirm(ctx, txHash)
	req.pending.ResolveConfirmed(receipt, err)
}
