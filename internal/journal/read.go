package journal

import (
	"context"
	"fmt"
	"time"
)

// SessionInfo describes one journaled session.
type SessionInfo struct {
	Token     string
	StartedAt time.Time
	Events    int
}

// Events returns every event for a session in seq order. Returns an empty
// slice (not nil) for an unknown token.
func (j *Journal) Events(ctx context.Context, token string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_token, seq, message_type, producer, payload, enqueued_ns, dispatched_ns, handlers, outcome
		FROM events
		WHERE session_token = ?
		ORDER BY seq ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.SessionToken,
			&ev.Seq,
			&ev.MessageType,
			&ev.Producer,
			&ev.Payload,
			&ev.EnqueuedNS,
			&ev.DispatchedNS,
			&ev.Handlers,
			&ev.Outcome,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Sessions lists journaled sessions ordered by start time.
func (j *Journal) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.token, s.started_ns, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN events e ON e.session_token = s.token
		GROUP BY s.token, s.started_ns
		ORDER BY s.started_ns ASC, s.token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var startedNS int64
		if err := rows.Scan(&info.Token, &startedNS, &info.Events); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.StartedAt = time.Unix(0, startedNS)
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
