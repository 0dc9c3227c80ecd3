// Package atomicval provides a small generic wrapper over sync/atomic for
// cross-goroutine flags and counters that need individual load/store
// atomicity and nothing more: a "connected" flag, a tick counter, a last-seen
// timestamp.
//
// The original design this mirrors used relaxed memory ordering for these
// fields. Go's memory model exposes only sequentially consistent atomics, so
// Value keeps the relaxed-atomic API surface with strictly stronger ordering
// guarantees. Callers still must not build multi-field invariants out of
// separate Values; that is what package guarded is for.
package atomicval

import "sync/atomic"

// Value is an atomic cell holding a single value of type T.
//
// T is constrained to comparable so CompareAndSwap is well defined; intended
// use is scalar types (bool, integers, small structs of scalars). The zero
// Value is usable and loads T's zero value until first Store.
type Value[T comparable] struct {
	v atomic.Value
}

// NewValue creates a Value initialised to initial.
func NewValue[T comparable](initial T) *Value[T] {
	a := &Value[T]{}
	a.v.Store(initial)
	return a
}

// Load atomically returns the current value.
func (a *Value[T]) Load() T {
	v, _ := a.v.Load().(T)
	return v
}

// Store atomically replaces the current value.
func (a *Value[T]) Store(v T) {
	a.v.Store(v)
}

// Swap atomically replaces the current value and returns the previous one
// (T's zero value if nothing was stored yet).
func (a *Value[T]) Swap(v T) T {
	old, _ := a.v.Swap(v).(T)
	return old
}

// CompareAndSwap atomically replaces old with new and reports whether it did.
// A never-stored Value compares equal to T's zero value.
func (a *Value[T]) CompareAndSwap(old, new T) bool {
	if a.v.CompareAndSwap(old, new) {
		return true
	}
	var zero T
	if old == zero && a.v.Load() == nil {
		return a.v.CompareAndSwap(nil, new)
	}
	return false
}

// Snapshot returns a new Value holding the current value. This is the
// copy-construction analogue: a load followed by a store, which is not atomic
// as a combined operation with respect to concurrent writers.
func (a *Value[T]) Snapshot() *Value[T] {
	return NewValue(a.Load())
}

// Aliases for the common scalar uses, mirroring the AtomicBool/AtomicInt
// family the networking code grew up with.
type (
	Bool   = Value[bool]
	Int    = Value[int]
	Int64  = Value[int64]
	Uint32 = Value[uint32]
)
