package dispatch

import "fmt"

// HandlerError reports a handler panic recovered during a drain. It is
// delivered to the error hook and logged, never returned: one message's
// failure must not abort the rest of the batch, and the consumer tick loop
// has no use for a partial-batch error value.
type HandlerError struct {
	// MessageType is the Go type of the message being delivered.
	MessageType string

	// Seq is the stamped sequence number of the offending message.
	Seq int64

	// Recovered is the value recovered from the handler's panic.
	Recovered any
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %s panicked (seq %d): %v", e.MessageType, e.Seq, e.Recovered)
}
