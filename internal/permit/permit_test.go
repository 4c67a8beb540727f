package permit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseWithinCapacity(t *testing.T) {
	p := New(2)
	require.NoError(t, p.Acquire(context.Background()))
	require.NoError(t, p.Acquire(context.Background()))
	assert.Equal(t, 0, p.Available())

	p.Release()
	assert.Equal(t, 1, p.Available())
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		_ = p.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not have succeeded before release")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should have succeeded after release")
	}
}

func TestFIFOFairness(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Acquire(context.Background()))

	const n = 20
	order := make([]int, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	started := make([]chan struct{}, n)
	for i := 0; i < n; i++ {
		started[i] = make(chan struct{})
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			close(started[i])
			require.NoError(t, p.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			p.Release()
		}(i)

		// Wait until goroutine i is queued before starting the next one,
		// so the waiter queue holds the goroutines in index order.
		<-started[i]
		require.Eventually(t, func() bool {
			return p.Waiting() == i+1
		}, time.Second, time.Millisecond)
	}

	p.Release() // releases the initial holder's permit

	wg.Wait()

	require.Len(t, order, n)
	for i := 1; i < n; i++ {
		assert.LessOrEqual(t, order[i-1], order[i], "waiters must be granted in FIFO order")
	}
}

func TestAcquireContextCancellation(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Acquire(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}

	// The permit holder can still release without blocking, and a
	// subsequent acquire should succeed normally.
	p.Release()
	require.NoError(t, p.Acquire(context.Background()))
}

func TestReleaseWithoutHolderIsIdempotentAboveCap(t *testing.T) {
	p := New(2)
	p.Release()
	p.Release()
	p.Release()
	assert.Equal(t, 2, p.Available())
}
