package dispatch

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test message types. The dynamic Go type is the routing discriminator.
type chatMsg struct {
	From string
	Text string
}

type posMsg struct {
	Player int
	X, Y   float32
}

type voiceMsg struct {
	Frame int
}

// Test owners.
type chatPanel struct {
	got []chatMsg
}

type world struct {
	got []posMsg
}

func TestDispatcher_RoutesByType(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	w := &world{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })
	Listen(d, w, func(w *world, m posMsg) { w.got = append(w.got, m) })

	d.Post(chatMsg{From: "red", Text: "hi"})
	d.Post(posMsg{Player: 1, X: 3, Y: 4})
	d.Post(voiceMsg{Frame: 9}) // no listener: dropped silently

	n := d.Dispatch()

	assert.Equal(t, 3, n)
	require.Len(t, panel.got, 1)
	assert.Equal(t, chatMsg{From: "red", Text: "hi"}, panel.got[0])
	require.Len(t, w.got, 1)
	assert.Equal(t, posMsg{Player: 1, X: 3, Y: 4}, w.got[0])
}

func TestDispatcher_SameTypeFIFO(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })

	for i := 0; i < 10; i++ {
		d.Post(chatMsg{Text: string(rune('a' + i))})
	}
	d.Dispatch()

	require.Len(t, panel.got, 10)
	for i, m := range panel.got {
		assert.Equal(t, string(rune('a'+i)), m.Text)
	}
}

func TestDispatcher_Reregistration_Replaces(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	calls := 0
	Listen(d, panel, func(*chatPanel, chatMsg) { calls += 100 })
	Listen(d, panel, func(*chatPanel, chatMsg) { calls++ }) // replaces

	d.Post(chatMsg{})
	d.Dispatch()

	assert.Equal(t, 1, calls, "only the latest handler for (type, owner) runs")
}

func TestDispatcher_TwoOwners_RegistrationOrder(t *testing.T) {
	d := New()

	var order []string
	a := &chatPanel{}
	b := &chatPanel{}
	Listen(d, a, func(*chatPanel, chatMsg) { order = append(order, "a") })
	Listen(d, b, func(*chatPanel, chatMsg) { order = append(order, "b") })

	d.Post(chatMsg{})
	d.Dispatch()

	assert.Equal(t, []string{"a", "b"}, order)
}

func TestDispatcher_Unlisten(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })
	Unlisten(d, panel)

	d.Post(chatMsg{Text: "after unlisten"})
	d.Dispatch()

	assert.Empty(t, panel.got, "handler must not run after Unlisten")
}

func TestDispatcher_CollectedOwner_SkippedNotInvoked(t *testing.T) {
	var records []TraceRecord
	d := New(WithObserver(func(r TraceRecord) { records = append(records, r) }))

	invoked := false
	func() {
		panel := &chatPanel{}
		Listen(d, panel, func(*chatPanel, chatMsg) { invoked = true })
		// panel goes out of scope here; the dispatcher's weak reference must
		// not keep it alive.
	}()

	runtime.GC()
	runtime.GC()

	d.Post(chatMsg{Text: "pending at teardown"})
	d.Dispatch()

	assert.False(t, invoked, "handler with collected owner must not run")
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeStale, records[0].Outcome)

	// The dead registration was pruned: the next message is a plain drop.
	d.Post(chatMsg{})
	d.Dispatch()
	require.Len(t, records, 2)
	assert.Equal(t, OutcomeDropped, records[1].Outcome)
}

func TestDispatcher_HandlerPanic_IsolatedPerMessage(t *testing.T) {
	var herrs []*HandlerError
	d := New(WithErrorHook(func(e *HandlerError) { herrs = append(herrs, e) }))

	panel := &chatPanel{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) {
		if m.Text == "bad" {
			panic("decode failure")
		}
		p.got = append(p.got, m)
	})

	d.Post(chatMsg{Text: "first"})
	d.Post(chatMsg{Text: "bad"})
	d.Post(chatMsg{Text: "last"})
	n := d.Dispatch()

	assert.Equal(t, 3, n, "the whole batch is drained despite the panic")
	require.Len(t, panel.got, 2)
	assert.Equal(t, "first", panel.got[0].Text)
	assert.Equal(t, "last", panel.got[1].Text)

	require.Len(t, herrs, 1)
	assert.Equal(t, "dispatch.chatMsg", herrs[0].MessageType)
	assert.Equal(t, "decode failure", herrs[0].Recovered)
	assert.Contains(t, herrs[0].Error(), "panicked")
}

func TestDispatcher_UnregisteredType_DroppedSilently(t *testing.T) {
	var records []TraceRecord
	d := New(WithObserver(func(r TraceRecord) { records = append(records, r) }))

	d.Post(voiceMsg{Frame: 1})
	n := d.Dispatch()

	assert.Equal(t, 1, n)
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeDropped, records[0].Outcome)
	assert.Equal(t, 0, records[0].Handlers)
}

func TestDispatcher_SeqStampsAreMonotonic(t *testing.T) {
	var records []TraceRecord
	d := New(WithObserver(func(r TraceRecord) { records = append(records, r) }))

	d.Post(chatMsg{})
	d.PostAll([]any{posMsg{}, voiceMsg{}})
	d.Dispatch()

	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Seq)
	}
	assert.Equal(t, int64(3), d.Posted())
	assert.Equal(t, int64(3), d.Drained())
}

func TestDispatcher_PostNil_Panics(t *testing.T) {
	d := New()

	assert.PanicsWithValue(t, "dispatch: Post of nil message", func() {
		d.Post(nil)
	})
}

func TestDispatcher_Close_DropsPendingAndRejectsPosts(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })

	d.Post(chatMsg{Text: "never delivered"})
	d.Close()

	assert.False(t, d.Post(chatMsg{}), "post after close is rejected")
	assert.Equal(t, 0, d.Dispatch(), "pending messages were discarded")
	assert.Empty(t, panel.got)
	assert.True(t, d.Closed())
}

func TestDispatcher_DispatchFor_TimesOutIdle(t *testing.T) {
	d := New()

	start := time.Now()
	n := d.DispatchFor(50 * time.Millisecond)

	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDispatcher_DispatchFor_WakesOnPost(t *testing.T) {
	d := New()

	panel := &chatPanel{}
	Listen(d, panel, func(p *chatPanel, m chatMsg) { p.got = append(p.got, m) })

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Post(chatMsg{Text: "late"})
	}()

	n := d.DispatchFor(time.Second)

	assert.Equal(t, 1, n)
	require.Len(t, panel.got, 1)
}

func TestDispatcher_Run_StopsOnContextCancel(t *testing.T) {
	d := New()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestDispatcher_Run_StopsOnClose(t *testing.T) {
	d := New()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on close")
	}
}

func TestDispatcher_ConcurrentProducers_PerProducerOrder(t *testing.T) {
	const producers = 4
	const perProducer = 500

	d := New()

	w := &world{}
	Listen(d, w, func(w *world, m posMsg) { w.got = append(w.got, m) })

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				d.Post(posMsg{Player: p, X: float32(i)})
			}
		}(p)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	// Consumer tick loop.
	deadline := time.After(10 * time.Second)
	for len(w.got) < producers*perProducer {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d messages delivered", len(w.got), producers*perProducer)
		default:
		}
		d.DispatchFor(5 * time.Millisecond)
	}
	<-done

	require.Len(t, w.got, producers*perProducer, "no loss, no duplication")

	next := make([]float32, producers)
	for _, m := range w.got {
		require.Equal(t, next[m.Player], m.X, "producer %d out of order", m.Player)
		next[m.Player]++
	}
}
