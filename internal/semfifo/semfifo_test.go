package semfifo

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetFIFOOrder(t *testing.T) {
	f := New[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, f.Put(i))
	}
	for i := 0; i < 4; i++ {
		v, ok := f.Get()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestTryPutFullReturnsFalse(t *testing.T) {
	f := New[int](2)
	require.True(t, f.TryPut(1))
	require.True(t, f.TryPut(2))
	assert.False(t, f.TryPut(3))
	assert.Equal(t, 2, f.Size())
}

func TestTryGetEmptyReturnsFalse(t *testing.T) {
	f := New[int](2)
	_, ok := f.TryGet()
	assert.False(t, ok)
}

func TestCapacityInvariant(t *testing.T) {
	f := New[int](3)
	assert.Equal(t, 3, f.Capacity())
	for i := 0; i < 3; i++ {
		f.TryPut(i)
		assert.GreaterOrEqual(t, f.Size(), 0)
		assert.LessOrEqual(t, f.Size(), f.Capacity())
	}
}

func TestPutBlocksUntilRoom(t *testing.T) {
	f := New[int](1)
	require.True(t, f.TryPut(1))

	done := make(chan bool, 1)
	go func() {
		done <- f.Put(2)
	}()

	select {
	case <-done:
		t.Fatal("Put should have blocked while full")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := f.Get()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Put never unblocked after room freed")
	}
}

func TestGetBlocksUntilItem(t *testing.T) {
	f := New[int](1)
	done := make(chan int, 1)
	go func() {
		v, ok := f.Get()
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()

	select {
	case <-done:
		t.Fatal("Get should have blocked while empty")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, f.Put(42))

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Put")
	}
}

func TestReleaseUnblocksAllWaitersExactlyOnce(t *testing.T) {
	f := New[int](1)
	const n = 8
	var wg sync.WaitGroup
	results := make(chan bool, n)

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := f.Get()
			results <- ok
			_, ok = f.TryGet()
			_ = ok
		}()
	}
	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// races the Get()s above for the single slot; a Put() that
			// finds it full blocks until a Get() frees it or Release()
			results <- f.Put(1)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	f.Release()
	wg.Wait()
	close(results)

	for ok := range results {
		// every previously blocked waiter must have returned exactly once;
		// we only assert no panic/deadlock occurred and results are bool
		_ = ok
	}
}

func TestReleaseThenGetReturnsFalse(t *testing.T) {
	f := New[int](2)
	f.Release()

	_, ok := f.Get()
	assert.False(t, ok)

	ok = f.Put(1)
	assert.False(t, ok)
}

func TestFlushResetsQueue(t *testing.T) {
	f := New[int](2)
	require.True(t, f.TryPut(1))
	f.Release()
	f.Flush()

	assert.Equal(t, 0, f.Size())
	require.True(t, f.TryPut(9))
	v, ok := f.TryGet()
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestWaitForEmptyTrueWhenEmpty(t *testing.T) {
	f := New[int](2)
	assert.True(t, f.WaitForEmpty(10*time.Millisecond))
}

func TestWaitForEmptyTimesOutWithoutConsuming(t *testing.T) {
	f := New[int](2)
	require.True(t, f.TryPut(1))

	assert.False(t, f.WaitForEmpty(20*time.Millisecond))
	assert.Equal(t, 1, f.Size())
}

func TestWaitForEmptyUnblocksWhenDrained(t *testing.T) {
	f := New[int](2)
	require.True(t, f.TryPut(1))

	done := make(chan bool, 1)
	go func() { done <- f.WaitForEmpty(-1) }()

	time.Sleep(20 * time.Millisecond)
	_, ok := f.TryGet()
	require.True(t, ok)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty never returned")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const (
		capacity   = 10
		producers  = 4
		consumers  = 4
		perProduce = 2500
	)
	f := New[int](capacity)
	var produced int64
	var consumed int64

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProduce; j++ {
				require.True(t, f.Put(j))
				atomic.AddInt64(&produced, 1)
			}
		}()
	}

	total := producers * perProduce
	share := total / consumers
	var cwg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := 0; j < share; j++ {
				_, ok := f.Get()
				require.True(t, ok)
				atomic.AddInt64(&consumed, 1)
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	assert.Equal(t, int64(total), atomic.LoadInt64(&produced))
	assert.Equal(t, int64(total), atomic.LoadInt64(&consumed))
	assert.Equal(t, 0, f.Size())
}
