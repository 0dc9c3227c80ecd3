package msgqueue

import (
	"context"
	"sync"
	"time"
)

// Queue is a thread-safe unbounded FIFO queue.
//
// Any number of goroutines may push; any number may pop or wait. Ordering is
// FIFO by push completion: each producer's own messages are delivered in its
// push order, and the global order is the order in which pushes acquired the
// internal mutex.
//
// Availability is signalled through a buffered channel of capacity one, so a
// burst of pushes coalesces into a single wakeup and each wakeup rouses one
// waiter (the channel is closed on Close, which wakes everyone).
//
// The zero value is not usable; construct with New.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

// New creates an empty open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v to the tail and wakes one waiter.
// Never blocks. Returns false if the queue has been closed, in which case v
// is discarded.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.notifyLocked()
	return true
}

// PushQuiet appends v without waking any waiter. Used by producers that batch
// several pushes and want a single wakeup at the end (follow with Push, or
// rely on a timed wait's re-check).
func (q *Queue[T]) PushQuiet(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// PushAll appends every element of vs preserving their relative order, with a
// single wakeup regardless of count. Returns false (discarding vs) if closed.
func (q *Queue[T]) PushAll(vs []T) bool {
	if len(vs) == 0 {
		return !q.Closed()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, vs...)
	q.notifyLocked()
	return true
}

// notifyLocked posts the availability signal without blocking.
// The buffer of one coalesces redundant signals. Caller holds q.mu, so the
// send can never race Close's close(q.signal).
func (q *Queue[T]) notifyLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the head of the queue.
//
// The queue must be non-empty: callers gate on Wait/WaitTimeout or TryPop.
// Popping an empty queue is a logic bug in the caller, not a runtime
// condition, and panics rather than returning a zero value that would be
// silently processed as a message.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		panic("msgqueue: Pop on empty queue")
	}
	v := q.items[0]
	var zero T
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	return v
}

// TryPop removes and returns the head, or reports false if the queue is
// empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// PopAll atomically drains the entire queue, returning the pending items in
// FIFO order. Returns nil when the queue is empty.
func (q *Queue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]T, 0, 64)
	return out
}

// Len returns a snapshot of the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue has no pending items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Wait blocks until at least one item is available, returning immediately if
// the queue is already non-empty. Also returns (without an item becoming
// available) once the queue is closed.
//
// By the time the caller pops, another consumer may already have taken the
// item; loop on TryPop when multiple consumers share the queue.
func (q *Queue[T]) Wait() {
	for {
		q.mu.Lock()
		if len(q.items) > 0 || q.closed {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// WaitTimeout blocks until an item is available or d elapses. It returns true
// if at least one item was present when it returned, false on timeout or
// close. Wakeups without an actual item (another consumer won the race) are
// absorbed by re-checking the predicate under lock.
func (q *Queue[T]) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			q.mu.Unlock()
			return true
		}
		if q.closed {
			q.mu.Unlock()
			return false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			// A push may have raced the timer; one final check.
			q.mu.Lock()
			ok := len(q.items) > 0
			q.mu.Unlock()
			return ok
		}
	}
}

// WaitContext is WaitTimeout with a context instead of a duration: it returns
// true once an item is available, false when ctx is done with nothing pending
// (a push that raced the cancellation still reports true) or the queue is
// closed.
func (q *Queue[T]) WaitContext(ctx context.Context) bool {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			q.mu.Unlock()
			return true
		}
		if q.closed {
			q.mu.Unlock()
			return false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			// A push may have raced the cancellation; one final check.
			q.mu.Lock()
			ok := len(q.items) > 0
			q.mu.Unlock()
			return ok
		}
	}
}

// Close marks the queue closed, drops all pending items, and wakes every
// waiter. Subsequent pushes return false; subsequent Close calls are no-ops.
// Tied to session teardown: stale messages queued at disconnect are discarded
// without ever reaching a handler.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
