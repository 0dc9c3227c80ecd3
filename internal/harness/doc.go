// Package harness runs scenario-driven soak tests against a dispatch
// session: N producer goroutines flood the queue with typed messages while a
// single consumer drains per tick, and the resulting trace is checked
// against the properties the core promises (no loss, no duplication,
// per-producer FIFO, routing by type, detached listeners skipped).
//
// Scenarios are declarative files (YAML or CUE) so the soak CLI and the
// golden tests share one format. Deterministic scenarios (one producer,
// fixed session token) render to stable traces suitable for golden-file
// comparison.
package harness
