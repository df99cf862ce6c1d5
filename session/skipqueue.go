package session

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// skipQueueTolerance is the scheduling slack an item may fire early or
// late by, per original_source/protocols/session/src/utils/
// skip_queue.rs's SkipDelayQueue::TOLERANCE.
const skipQueueTolerance = 5 * time.Millisecond

type sqEntry[T any] struct {
	item      T
	at        time.Time
	cancelled bool
	index     int
}

// sqHeap is a container/heap ordered by deadline, the stdlib substitute
// for the Rust original's BTreeSet<DelayedEntry> (justified in
// DESIGN.md: the original needs an ordered set with O(log n)
// insert/remove-min, which is exactly what container/heap provides,
// and this package doesn't need BTreeSet's additional range-scan
// operations).
type sqHeap[T any] []*sqEntry[T]

func (h sqHeap[T]) Len() int            { return len(h) }
func (h sqHeap[T]) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h sqHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *sqHeap[T]) Push(x any) {
	e := x.(*sqEntry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *sqHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// SkipQueue is a queue of items with attached deadlines that emerge in
// deadline order on Output, with cancellation support before an item
// fires. Equal items (by Go ==, since this package keys it by a
// comparable type parameter rather than a user Ord impl) overwrite the
// earlier deadline, mirroring BTreeSet::replace in the Rust original.
// Grounded on skip_queue.rs; translated from a futures::Sink/Stream
// pair into a goroutine-driven channel, since this module has no
// futures runtime to adapt to: suspension becomes a blocking channel
// receive or goroutine park.
type SkipQueue[T comparable] struct {
	mu    sync.Mutex
	clock clock.Clock
	heap  sqHeap[T]
	index map[T]*sqEntry[T]
	wake  chan struct{}

	closed bool
	stop   chan struct{}
	out    chan T
}

// NewSkipQueue builds and starts a SkipQueue. Call Close to stop its
// background dispatch goroutine and release the item stream.
func NewSkipQueue[T comparable](clk clock.Clock, outputBuffer int) *SkipQueue[T] {
	q := &SkipQueue[T]{
		clock: clk,
		index: make(map[T]*sqEntry[T]),
		stop:  make(chan struct{}),
		out:   make(chan T, outputBuffer),
	}
	go q.run()
	return q
}

// Output yields items strictly at or after their deadline (within
// skipQueueTolerance), in deadline order.
func (q *SkipQueue[T]) Output() <-chan T { return q.out }

// New adds (or replaces the deadline of) item, to fire at deadline.
func (q *SkipQueue[T]) New(item T, deadline time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrBrokenPipe
	}

	if e, ok := q.index[item]; ok {
		e.at = deadline
		e.cancelled = false
		heap.Fix(&q.heap, e.index)
	} else {
		e := &sqEntry[T]{item: item, at: deadline}
		q.index[item] = e
		heap.Push(&q.heap, e)
	}

	q.notifyLocked()
	return nil
}

// Cancel marks item, if still pending, so it is skipped when it
// reaches the front of the queue rather than emitted.
func (q *SkipQueue[T]) Cancel(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.index[item]; ok {
		e.cancelled = true
		delete(q.index, item)
	}
}

// Close stops the background dispatch goroutine and closes Output.
// Further calls to New fail with ErrBrokenPipe.
func (q *SkipQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.stop)
}

func (q *SkipQueue[T]) notifyLocked() {
	if q.wake != nil {
		close(q.wake)
		q.wake = nil
	}
}

func (q *SkipQueue[T]) run() {
	defer close(q.out)

	for {
		q.mu.Lock()
		for q.heap.Len() > 0 && q.heap[0].cancelled {
			e := heap.Pop(&q.heap).(*sqEntry[T])
			// A New after Cancel indexes a fresh entry for the same item.
			if q.index[e.item] == e {
				delete(q.index, e.item)
			}
		}

		if q.heap.Len() == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			wake := make(chan struct{})
			q.wake = wake
			q.mu.Unlock()

			select {
			case <-wake:
			case <-q.stop:
				return
			}
			continue
		}

		next := q.heap[0]
		wait := next.at.Sub(q.clock.Now())
		if wait <= skipQueueTolerance {
			e := heap.Pop(&q.heap).(*sqEntry[T])
			delete(q.index, e.item)
			q.mu.Unlock()

			select {
			case q.out <- e.item:
			case <-q.stop:
				return
			}
			continue
		}

		wake := make(chan struct{})
		q.wake = wake
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-wake:
			timer.Stop()
		case <-q.stop:
			timer.Stop()
			return
		}
	}
}
