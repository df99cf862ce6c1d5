// Package cpupool implements a bounded FIFO CPU-worker pool for
// bounded-latency synchronous work (SPHINX decode, ticket signature
// verification, peer-id conversion) dispatched off the packet-processing
// goroutines, with saturation treated as local overload rather than
// queued indefinitely.
//
// The shape is the idiomatic Go analogue of htlcswitch's dedicated,
// single-purpose goroutines draining a shared channel (see
// htlcswitch/switch.go's htlcPlex loop): a bounded job channel plus a
// fixed set of workers, with submission itself non-blocking.
package cpupool

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
)

// ErrOverload is returned by Submit when the job queue is full: the
// caller should treat this as local overload, not a cryptographic or
// protocol failure.
var ErrOverload = errors.New("cpupool: queue full, local overload")

type job struct {
	fn     func() (any, error)
	result chan<- jobResult
}

type jobResult struct {
	value any
	err   error
}

// Pool is a bounded FIFO dispatcher for CPU-bound synchronous work.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	quit chan struct{}
}

// New starts a Pool with the given number of workers and queue depth.
func New(workers, queueDepth int) *Pool {
	p := &Pool{
		jobs: make(chan job, queueDepth),
		quit: make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			value, err := j.fn()
			j.result <- jobResult{value: value, err: err}
		case <-p.quit:
			return
		}
	}
}

// Submit enqueues fn for execution on a worker goroutine and blocks
// until it completes or ctx is canceled. If the queue is already full,
// Submit returns ErrOverload immediately without blocking — this is
// the local-overload saturation signal callers distinguish from a
// cryptographic or protocol failure.
func (p *Pool) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	result := make(chan jobResult, 1)

	select {
	case p.jobs <- job{fn: fn, result: result}:
	default:
		return nil, ErrOverload
	}

	select {
	case res := <-result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop terminates all worker goroutines. In-flight jobs already popped
// from the queue still run to completion; queued-but-undispatched jobs
// are abandoned.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}
