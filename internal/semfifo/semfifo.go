// Package semfifo implements a bounded, thread-safe FIFO used pervasively
// for cross-thread event delivery: a Keymaster subscription callback that
// must never block enqueues events here with TryPut, and a dedicated
// service goroutine drains them with Get.
//
// Two counting semaphores (emptySlots, fullSlots) gate producers and
// consumers, a mutex protects the ring indices, and a condition variable
// signals the empty rendezvous. Blocking calls acquire a semaphore unit
// through golang.org/x/sync/semaphore.Weighted, whose Acquire already
// retries spurious wakeups transparently against a context; release-driven
// cancellation is modeled by cancelling that context, waking every blocked
// acquirer at once rather than posting one wakeup per waiter.
package semfifo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// SemFIFO is a bounded ring buffer of capacity N with blocking and
// non-blocking put/get, a releasable cancellation mechanism, and an
// empty-rendezvous wait.
type SemFIFO[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf   []T
	head  int
	tail  int
	count int

	emptySlots *semaphore.Weighted
	fullSlots  *semaphore.Weighted

	released bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// New returns a SemFIFO with the given capacity. Capacity must be >= 1.
func New[T any](capacity int) *SemFIFO[T] {
	if capacity < 1 {
		capacity = 1
	}
	f := &SemFIFO[T]{buf: make([]T, capacity)}
	f.cond = sync.NewCond(&f.mu)
	f.reprime(capacity)
	return f
}

func (f *SemFIFO[T]) reprime(capacity int) {
	f.emptySlots = semaphore.NewWeighted(int64(capacity))
	f.fullSlots = semaphore.NewWeighted(int64(capacity))
	// fullSlots starts with nothing to get: hold all its permits until
	// Put()s release them one at a time.
	_ = f.fullSlots.Acquire(context.Background(), int64(capacity))
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.released = false
}

// Put blocks while the queue is full. Returns true once enqueued, false
// if the queue was released while this call was blocked.
func (f *SemFIFO[T]) Put(x T) bool {
	ctx, empty, full := f.snapshot()
	if !f.acquire(ctx, empty) {
		return false
	}
	f.push(x)
	full.Release(1)
	return true
}

// TryPut enqueues x without blocking. Returns false if the queue is full
// or has been released.
func (f *SemFIFO[T]) TryPut(x T) bool {
	if f.isReleased() {
		return false
	}
	_, empty, full := f.snapshot()
	if !empty.TryAcquire(1) {
		return false
	}
	f.push(x)
	full.Release(1)
	return true
}

// Get blocks while the queue is empty. Returns the dequeued value and
// true, or the zero value and false if the queue was released while this
// call was blocked.
func (f *SemFIFO[T]) Get() (T, bool) {
	var zero T
	ctx, empty, full := f.snapshot()
	if !f.acquire(ctx, full) {
		return zero, false
	}
	x := f.pop()
	empty.Release(1)
	return x, true
}

// TryGet dequeues without blocking. Returns the zero value and false if
// the queue is empty.
func (f *SemFIFO[T]) TryGet() (T, bool) {
	var zero T
	if f.isReleased() {
		return zero, false
	}
	_, empty, full := f.snapshot()
	if !full.TryAcquire(1) {
		return zero, false
	}
	x := f.pop()
	empty.Release(1)
	return x, true
}

// snapshot returns the context and semaphore pair currently in effect,
// taken under f.mu so it can never observe a torn write from a
// concurrent reprime (via Flush).
func (f *SemFIFO[T]) snapshot() (ctx context.Context, empty, full *semaphore.Weighted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx, f.emptySlots, f.fullSlots
}

// acquire blocks until a unit of sem is available under ctx or the queue
// is released (ctx cancelled), in which case it returns false without
// ever having taken a unit away from a subsequent Flush.
func (f *SemFIFO[T]) acquire(ctx context.Context, sem *semaphore.Weighted) bool {
	if err := sem.Acquire(ctx, 1); err != nil {
		return false
	}
	if f.isReleased() {
		sem.Release(1)
		return false
	}
	return true
}

func (f *SemFIFO[T]) isReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *SemFIFO[T]) push(x T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.tail] = x
	f.tail = (f.tail + 1) % len(f.buf)
	f.count++
}

func (f *SemFIFO[T]) pop() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	x := f.buf[f.head]
	var zero T
	f.buf[f.head] = zero
	f.head = (f.head + 1) % len(f.buf)
	f.count--
	if f.count == 0 {
		f.cond.Broadcast()
	}
	return x
}

// Release unblocks every currently blocked Put/Get exactly once and marks
// the queue unusable until Flush re-primes it.
func (f *SemFIFO[T]) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	f.cancel()
}

// Flush discards the queue's contents, clears the released flag, and
// resets it to a fresh, usable state of the same capacity.
func (f *SemFIFO[T]) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	capacity := len(f.buf)
	for i := range f.buf {
		var zero T
		f.buf[i] = zero
	}
	f.head, f.tail, f.count = 0, 0, 0

	f.reprime(capacity)
	f.cond.Broadcast()
}

// WaitForEmpty blocks until Size()==0 or the timeout elapses. A negative
// timeout waits indefinitely. Returns false on timeout without consuming
// any items.
func (f *SemFIFO[T]) WaitForEmpty(timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		return true
	}
	if timeout < 0 {
		for f.count != 0 {
			f.cond.Wait()
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	for f.count != 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, func() {
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		})
		f.cond.Wait()
		timer.Stop()
	}
	return true
}

// Size returns the number of items currently queued.
func (f *SemFIFO[T]) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Capacity returns the maximum number of items the queue can hold.
func (f *SemFIFO[T]) Capacity() int {
	return len(f.buf)
}
