// Package dispatch routes typed messages from the network receive goroutine
// to handlers that run on the game tick goroutine.
//
// Producers call Post from any goroutine; the message is stamped with a
// monotonic sequence number and buffered in an unbounded msgqueue.Queue. The
// consumer calls Dispatch exactly once per tick: the queue is drained in full
// and each message is delivered, in arrival order, to the handlers registered
// for its Go type.
//
// Handlers are owned: registration ties a handler to an owner object through
// a weak reference, so the dispatcher never keeps the owner alive and never
// invokes a handler whose owner has been collected. Owners with
// deterministic teardown should still call Unlisten; the weak reference is
// the backstop against dangling invocations, not a substitute for cleanup.
//
// A handler panic is isolated to its message: it is reported through the
// configured logger and error hook, and the remainder of the batch is
// delivered normally.
package dispatch
