package journal

import (
	"context"
	"fmt"
	"time"
)

// Event is one journaled dispatch record.
type Event struct {
	SessionToken string
	Seq          int64
	MessageType  string // logical message kind, e.g. "position"
	Producer     string // origin label, e.g. "producer-2"
	Payload      string // JSON payload for replay; empty if not captured
	EnqueuedNS   int64
	DispatchedNS int64
	Handlers     int
	Outcome      string // dispatch.Outcome string form
}

// BeginSession records a session row. Idempotent: re-recording an existing
// token keeps the original start time.
func (j *Journal) BeginSession(ctx context.Context, token string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (token, started_ns)
		VALUES (?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, startedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// Append inserts one event. Idempotent on (session, seq): replaying an
// append after a partial failure is silently ignored rather than duplicated.
func (j *Journal) Append(ctx context.Context, ev Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(session_token, seq, message_type, producer, payload, enqueued_ns, dispatched_ns, handlers, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_token, seq) DO NOTHING
	`,
		ev.SessionToken,
		ev.Seq,
		ev.MessageType,
		ev.Producer,
		ev.Payload,
		ev.EnqueuedNS,
		ev.DispatchedNS,
		ev.Handlers,
		ev.Outcome,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
