package itempool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTest = errors.New("prepare failed")

func TestPool_TakePrefersCached(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	pool, err := New(2, func() (int, error) {
		return int(created.Add(1)), nil
	}, nil, nil)
	require.NoError(t, err)

	h1, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, h1.Item())

	h1.Release()
	require.Equal(t, 1, pool.Cached())

	h2, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, h2.Item())
	require.Equal(t, int32(1), created.Load())
}

func TestPool_ReturnAboveCapacityDisposes(t *testing.T) {
	t.Parallel()

	var disposed atomic.Int32
	var next atomic.Int32
	pool, err := New(1, func() (int, error) {
		return int(next.Add(1)), nil
	}, nil, func(int) { disposed.Add(1) })
	require.NoError(t, err)

	// Creating above capacity is allowed; only caching is bounded.
	h1, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)
	h2, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)

	h1.Release()
	h2.Release()
	require.Equal(t, 1, pool.Cached())
	require.Equal(t, int32(1), disposed.Load())

	// Release is idempotent.
	h2.Release()
	require.Equal(t, int32(1), disposed.Load())
}

func TestPool_PrepareFailureDisposes(t *testing.T) {
	t.Parallel()

	var disposed atomic.Int32
	pool, err := New(2, func() (int, error) { return 7, nil },
		func(int) error { return errTest },
		func(int) { disposed.Add(1) })
	require.NoError(t, err)

	h, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 0, pool.Cached())
	require.Equal(t, int32(1), disposed.Load())
}

func TestPool_TakeBlocksUntilFreed(t *testing.T) {
	t.Parallel()

	// No factory: takes must wait for returns.
	pool, err := New[int](1, nil, nil, nil)
	require.NoError(t, err)

	_, err = pool.Take(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	seeded, err := New[int](1, func() (int, error) { return 1, nil }, nil, nil)
	require.NoError(t, err)
	h, err := seeded.Take(context.Background(), time.Second)
	require.NoError(t, err)
	h.Release()

	// Drop the factory path by racing a waiter against a releaser.
	waiter, err := New[int](1, nil, nil, nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		h, err := waiter.Take(context.Background(), time.Second)
		if err == nil {
			h.Release()
		}
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	waiter.put(42)
	require.NoError(t, <-done)
}

func TestPool_ConcurrentTakersNeverShareAnItem(t *testing.T) {
	t.Parallel()

	const capacity = 3
	const goroutines = 16
	const iterations = 200

	var next atomic.Int32
	pool, err := New(capacity, func() (int, error) {
		return int(next.Add(1)), nil
	}, nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	inUse := make(map[int]bool)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				h, err := pool.Take(context.Background(), time.Second)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if inUse[h.Item()] {
					t.Errorf("item %d handed out twice", h.Item())
					mu.Unlock()
					return
				}
				inUse[h.Item()] = true
				mu.Unlock()

				mu.Lock()
				inUse[h.Item()] = false
				mu.Unlock()
				h.Release()

				if cached := pool.Cached(); cached > capacity {
					t.Errorf("cached %d exceeds capacity %d", cached, capacity)
					return
				}
			}
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, pool.Cached(), capacity)
}

func TestPool_Close(t *testing.T) {
	t.Parallel()

	var disposed atomic.Int32
	pool, err := New(2, func() (int, error) { return 1, nil }, nil, func(int) { disposed.Add(1) })
	require.NoError(t, err)

	h, err := pool.Take(context.Background(), time.Second)
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 1, pool.Cached())

	pool.Close()
	require.Equal(t, int32(1), disposed.Load())

	_, err = pool.Take(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)
}
