package session

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// SkipQueue's dispatch loop sleeps on a real time.Timer sized from the
// deadline at the moment of scheduling, so these tests drive it with a
// real clock and short, real deadlines rather than a TestClock.

func TestSkipQueueEmitsInDeadlineOrder(t *testing.T) {
	q := NewSkipQueue[int](clock.NewDefaultClock(), 4)
	defer q.Close()

	now := time.Now()
	require.NoError(t, q.New(2, now.Add(40*time.Millisecond)))
	require.NoError(t, q.New(1, now.Add(10*time.Millisecond)))
	require.NoError(t, q.New(3, now.Add(70*time.Millisecond)))

	var order []int
	for i := 0; i < 3; i++ {
		select {
		case v := <-q.Output():
			order = append(order, v)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for item")
		}
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestSkipQueueNewReplacesExistingDeadline(t *testing.T) {
	q := NewSkipQueue[int](clock.NewDefaultClock(), 4)
	defer q.Close()

	now := time.Now()
	require.NoError(t, q.New(1, now.Add(500*time.Millisecond)))
	// Replace with an earlier deadline before it fires.
	require.NoError(t, q.New(1, now.Add(10*time.Millisecond)))

	select {
	case v := <-q.Output():
		require.Equal(t, 1, v)
	case <-time.After(1 * time.Second):
		t.Fatal("replaced item never fired")
	}
}

func TestSkipQueueCancelBeforeFireSkipsItem(t *testing.T) {
	q := NewSkipQueue[int](clock.NewDefaultClock(), 4)
	defer q.Close()

	now := time.Now()
	require.NoError(t, q.New(1, now.Add(20*time.Millisecond)))
	require.NoError(t, q.New(2, now.Add(40*time.Millisecond)))
	q.Cancel(1)

	select {
	case v := <-q.Output():
		require.Equal(t, 2, v)
	case <-time.After(1 * time.Second):
		t.Fatal("surviving item never fired")
	}
}

func TestSkipQueueCancelThenNewCreatesFreshLiveEntry(t *testing.T) {
	q := NewSkipQueue[int](clock.NewDefaultClock(), 4)
	defer q.Close()

	now := time.Now()
	require.NoError(t, q.New(1, now.Add(500*time.Millisecond)))
	q.Cancel(1)
	// Re-scheduling after cancellation must produce a live item again.
	require.NoError(t, q.New(1, now.Add(10*time.Millisecond)))

	select {
	case v := <-q.Output():
		require.Equal(t, 1, v)
	case <-time.After(1 * time.Second):
		t.Fatal("rescheduled item never fired")
	}
}

func TestSkipQueueCloseStopsAcceptingNewItems(t *testing.T) {
	q := NewSkipQueue[int](clock.NewDefaultClock(), 4)
	q.Close()

	err := q.New(1, time.Now().Add(time.Millisecond))
	require.ErrorIs(t, err, ErrBrokenPipe)

	_, ok := <-q.Output()
	require.False(t, ok)
}
