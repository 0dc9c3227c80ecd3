package dispatch

import "github.com/Uproxide/globed2/atomicval"

// Session binds a Dispatcher to the lifetime of one network connection.
// Created when the connection is established, closed when it drops; messages
// still queued at close are discarded without invocation. The token
// correlates log lines and journal rows across the session.
type Session struct {
	token  string
	d      *Dispatcher
	closed atomicval.Bool
}

// NewSession creates a session with a fresh dispatcher. A nil gen defaults
// to UUIDv7Generator.
func NewSession(gen TokenGenerator, opts ...Option) *Session {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return &Session{
		token: gen.Generate(),
		d:     New(opts...),
	}
}

// Token returns the session's correlation token.
func (s *Session) Token() string {
	return s.token
}

// Dispatcher returns the session's dispatcher, for listener registration and
// the consumer tick loop.
func (s *Session) Dispatcher() *Dispatcher {
	return s.d
}

// Post forwards to the dispatcher. Returns false once the session is closed.
func (s *Session) Post(msg any) bool {
	if s.closed.Load() {
		return false
	}
	return s.d.Post(msg)
}

// Close tears the session down: the queue is closed, pending messages are
// dropped, and further posts are rejected. Idempotent.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.d.Close()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
