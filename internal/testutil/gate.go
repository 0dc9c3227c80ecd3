package testutil

import "sync"

// Gate holds a group of goroutines at a start line so concurrency tests get
// real contention instead of producers running one after another as they are
// spawned.
//
//	gate := testutil.NewGate()
//	for i := range producers {
//	    go func() { gate.Wait(); produce(i) }()
//	}
//	gate.Open()
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Wait blocks until the gate opens.
func (g *Gate) Wait() {
	<-g.ch
}

// Open releases every waiter. Idempotent.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}
