package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_AppendAndReadBack(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	start := time.Unix(100, 0)
	require.NoError(t, j.BeginSession(ctx, "s1", start))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, j.Append(ctx, Event{
			SessionToken: "s1",
			Seq:          i,
			MessageType:  "position",
			Producer:     "producer-0",
			Payload:      `{"index":1}`,
			EnqueuedNS:   i * 10,
			DispatchedNS: i*10 + 5,
			Handlers:     1,
			Outcome:      "handled",
		}))
	}

	events, err := j.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq, "events come back in seq order")
		assert.Equal(t, "position", ev.MessageType)
		assert.Equal(t, "handled", ev.Outcome)
	}
}

func TestJournal_AppendIdempotent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.BeginSession(ctx, "s1", time.Now()))

	ev := Event{SessionToken: "s1", Seq: 1, MessageType: "chat", Outcome: "handled"}
	require.NoError(t, j.Append(ctx, ev))
	require.NoError(t, j.Append(ctx, ev), "duplicate append is ignored, not an error")

	events, err := j.Events(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestJournal_UnknownSessionIsEmpty(t *testing.T) {
	j := openTestJournal(t)

	events, err := j.Events(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)
}

func TestJournal_SessionsOrderedByStart(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.BeginSession(ctx, "later", time.Unix(200, 0)))
	require.NoError(t, j.BeginSession(ctx, "earlier", time.Unix(100, 0)))
	require.NoError(t, j.Append(ctx, Event{SessionToken: "later", Seq: 1, MessageType: "chat", Outcome: "dropped"}))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "earlier", sessions[0].Token)
	assert.Equal(t, 0, sessions[0].Events)
	assert.Equal(t, "later", sessions[1].Token)
	assert.Equal(t, 1, sessions[1].Events)
}

func TestJournal_BeginSessionIdempotent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.BeginSession(ctx, "s1", time.Unix(100, 0)))
	require.NoError(t, j.BeginSession(ctx, "s1", time.Unix(999, 0)))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, time.Unix(100, 0), sessions[0].StartedAt, "original start time wins")
}
