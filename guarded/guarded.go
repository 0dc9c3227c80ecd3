// Package guarded wraps a value behind a mutex so that the only way to reach
// it is through a scoped guard. It carries shared state across the
// network/game-loop boundary outside the message flow: a connection flag, a
// player-list snapshot, an interpolation state blob.
//
// Access discipline: acquire, read/write through the guard, release before
// doing anything else that blocks. Acquisition has no timeout, so holding a
// guard across another Lock of the same value deadlocks; that simplicity is
// deliberate.
package guarded

import "sync"

// Guarded owns exactly one value of type T, reachable only via Lock.
//
// The zero value of Guarded[T] guards the zero value of T and is immediately
// usable.
type Guarded[T any] struct {
	mu    sync.Mutex
	value T
}

// New creates a Guarded holding initial.
func New[T any](initial T) *Guarded[T] {
	return &Guarded[T]{value: initial}
}

// Lock blocks until the mutex is acquired and returns the scoped guard.
// Release it on every exit path:
//
//	g := state.Lock()
//	defer g.Unlock()
//	g.Value().Players = append(g.Value().Players, p)
//
// Exactly one guard is live per acquisition; guards must not be copied or
// handed to another goroutine.
func (g *Guarded[T]) Lock() *Guard[T] {
	g.mu.Lock()
	return &Guard[T]{owner: g}
}

// With runs fn with exclusive access to the value, releasing the lock when fn
// returns (including by panic).
func (g *Guarded[T]) With(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Swap replaces the value and returns the previous one.
func (g *Guarded[T]) Swap(v T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.value
	g.value = v
	return old
}

// Get returns a copy of the value taken under the lock.
func (g *Guarded[T]) Get() T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Set replaces the value under the lock.
func (g *Guarded[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Guard is the scoped accessor returned by Lock. It holds the mutex from
// creation until Unlock.
type Guard[T any] struct {
	owner    *Guarded[T]
	released bool
}

// Value returns a pointer to the protected value for reading or writing.
// Using the guard after Unlock is a contract violation and panics: a silent
// unsynchronised access would be a data race.
func (gd *Guard[T]) Value() *T {
	if gd.released {
		panic("guarded: use of Guard after Unlock")
	}
	return &gd.owner.value
}

// Get returns a copy of the protected value.
func (gd *Guard[T]) Get() T {
	return *gd.Value()
}

// Set replaces the protected value.
func (gd *Guard[T]) Set(v T) {
	*gd.Value() = v
}

// Unlock releases the mutex early. Idempotent: a second Unlock (typically the
// deferred one after an explicit early release) is a no-op rather than a
// double release.
func (gd *Guard[T]) Unlock() {
	if gd.released {
		return
	}
	gd.released = true
	gd.owner.mu.Unlock()
}
