package dispatch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_TokenFromGenerator(t *testing.T) {
	s := NewSession(NewFixedTokenGenerator("session-1"))
	assert.Equal(t, "session-1", s.Token())
}

func TestSession_DefaultGeneratorIsUUIDv7(t *testing.T) {
	s := NewSession(nil)

	id, err := uuid.Parse(s.Token())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestSession_PostAndDispatch(t *testing.T) {
	s := NewSession(NewFixedTokenGenerator("s"))

	panel := &chatPanel{}
	Listen(s.Dispatcher(), panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })

	require.True(t, s.Post(chatMsg{Text: "hello"}))
	s.Dispatcher().Dispatch()

	require.Len(t, panel.got, 1)
}

func TestSession_Close_DropsPendingIdempotently(t *testing.T) {
	s := NewSession(NewFixedTokenGenerator("s"))

	panel := &chatPanel{}
	Listen(s.Dispatcher(), panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })

	s.Post(chatMsg{Text: "stale"})
	s.Close()
	s.Close() // second close is a no-op

	assert.True(t, s.Closed())
	assert.False(t, s.Post(chatMsg{}), "post after close is rejected")
	assert.Equal(t, 0, s.Dispatcher().Dispatch(), "pending messages dropped at teardown")
	assert.Empty(t, panel.got)
}

func TestFixedTokenGenerator_ExhaustionPanics(t *testing.T) {
	gen := NewFixedTokenGenerator("only")

	assert.Equal(t, "only", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
