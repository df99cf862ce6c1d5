package cpupool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolDispatchesWork(t *testing.T) {
	p := New(2, 4)
	defer p.Stop()

	result, err := p.Submit(context.Background(), func() (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
}

func TestPoolSaturationYieldsOverload(t *testing.T) {
	p := New(1, 1)
	defer p.Stop()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)

	// Occupy the single worker so the queue depth of 1 can fill up
	// behind it.
	go func() {
		_, _ = p.Submit(context.Background(), func() (any, error) {
			started.Done()
			<-release
			return nil, nil
		})
	}()
	started.Wait()

	// Fill the one queue slot.
	go func() {
		_, _ = p.Submit(context.Background(), func() (any, error) {
			<-release
			return nil, nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := p.Submit(context.Background(), func() (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrOverload)

	close(release)
}
