// Package msgqueue provides the unbounded multi-producer queue that carries
// decoded network messages from the receive goroutine to the game tick loop.
//
// The queue is deliberately unbounded: producers never block and never drop
// (until the owning session is closed), which keeps the network goroutine
// responsive at the cost of memory under pathological load. Consumers are
// expected to drain in full once per tick via PopAll rather than popping
// items one at a time, which amortises lock traffic to one acquisition per
// tick.
package msgqueue
