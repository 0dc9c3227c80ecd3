package dispatch

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sync/atomic"
	"time"
	"weak"

	"github.com/Uproxide/globed2/guarded"
	"github.com/Uproxide/globed2/msgqueue"
)

// Envelope wraps a posted message with its producer-side stamp.
type Envelope struct {
	// Seq is the monotonic sequence number assigned at Post time.
	Seq int64

	// At is the wall-clock enqueue time (diagnostics only; ordering is Seq).
	At time.Time

	// Msg is the opaque typed payload. Its dynamic Go type is the routing
	// discriminator: no two payload shapes share a registry entry unless they
	// share a type.
	Msg any
}

// Outcome classifies what happened to one message during a drain.
type Outcome string

const (
	// OutcomeHandled: at least one live handler ran.
	OutcomeHandled Outcome = "handled"
	// OutcomeDropped: no handler registered for the type. Normal, not an error.
	OutcomeDropped Outcome = "dropped"
	// OutcomeStale: handlers existed but every owner was already gone.
	OutcomeStale Outcome = "stale"
	// OutcomePanicked: a handler panicked (the batch still continued).
	OutcomePanicked Outcome = "panicked"
)

// TraceRecord describes the delivery of one message. Emitted to the observer
// hook after each message is processed; the soak harness and the journal are
// its consumers.
type TraceRecord struct {
	Seq          int64
	Type         string
	Msg          any
	EnqueuedAt   time.Time
	DispatchedAt time.Time
	Handlers     int
	Outcome      Outcome
}

// listener is one (owner, handler) registration. The owner is held weakly:
// resolve returns the live owner or reports that it has been collected.
type listener struct {
	key     any
	resolve func() (any, bool)
	call    func(owner, msg any)
}

type registry map[reflect.Type][]*listener

// Dispatcher owns the message queue and the per-type listener registry.
//
// Post/PostAll are the producer side and are safe from any goroutine.
// Dispatch, DispatchFor and Run are the consumer side and must run on a
// single goroutine, the same one that owns the state handlers mutate.
type Dispatcher struct {
	queue     *msgqueue.Queue[Envelope]
	clock     Sequencer
	listeners *guarded.Guarded[registry]
	logger    *slog.Logger
	errHook   func(*HandlerError)
	observer  func(TraceRecord)

	posted  atomic.Int64
	drained atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-message debug output and handler
// failure reports. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithErrorHook installs a callback invoked for every recovered handler
// panic, after logging. The hook runs on the consumer goroutine.
func WithErrorHook(fn func(*HandlerError)) Option {
	return func(d *Dispatcher) { d.errHook = fn }
}

// WithObserver installs a callback invoked with a TraceRecord after each
// message is processed. The observer runs on the consumer goroutine.
func WithObserver(fn func(TraceRecord)) Option {
	return func(d *Dispatcher) { d.observer = fn }
}

// WithClock substitutes the stamping sequencer, e.g. to resume a journaled
// sequence during replay or to stamp a deterministic test run.
func WithClock(c Sequencer) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// New creates a Dispatcher with an empty registry and an open queue.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:     msgqueue.New[Envelope](),
		clock:     NewClock(),
		listeners: guarded.New(registry{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Post stamps msg and appends it to the queue, waking the consumer.
// Never blocks. Returns false once the dispatcher is closed (the message is
// discarded). A nil msg is a contract violation and panics: nil has no
// dynamic type to route on.
func (d *Dispatcher) Post(msg any) bool {
	if msg == nil {
		panic("dispatch: Post of nil message")
	}
	ok := d.queue.Push(Envelope{Seq: d.clock.Next(), At: time.Now(), Msg: msg})
	if ok {
		d.posted.Add(1)
	}
	return ok
}

// PostAll stamps and appends every message preserving order, with a single
// consumer wakeup. Returns false once the dispatcher is closed.
func (d *Dispatcher) PostAll(msgs []any) bool {
	if len(msgs) == 0 {
		return !d.queue.Closed()
	}
	envs := make([]Envelope, len(msgs))
	now := time.Now()
	for i, msg := range msgs {
		if msg == nil {
			panic("dispatch: Post of nil message")
		}
		envs[i] = Envelope{Seq: d.clock.Next(), At: now, Msg: msg}
	}
	ok := d.queue.PushAll(envs)
	if ok {
		d.posted.Add(int64(len(envs)))
	}
	return ok
}

// Listen registers fn as owner's handler for messages of type M. At most one
// handler exists per (type, owner): registering again replaces the previous
// handler in place, keeping its position in the invocation order.
//
// The owner is referenced weakly. fn receives the owner as its first
// argument and must not be a closure capturing owner, or the capture keeps
// the owner alive and defeats teardown-by-collection.
func Listen[O any, M any](d *Dispatcher, owner *O, fn func(*O, M)) {
	if owner == nil {
		panic("dispatch: Listen with nil owner")
	}
	if fn == nil {
		panic("dispatch: Listen with nil handler")
	}

	wp := weak.Make(owner)
	l := &listener{
		key: wp,
		resolve: func() (any, bool) {
			o := wp.Value()
			return o, o != nil
		},
		call: func(o, m any) {
			fn(o.(*O), m.(M))
		},
	}

	typ := reflect.TypeFor[M]()
	g := d.listeners.Lock()
	defer g.Unlock()
	reg := *g.Value()
	for i, existing := range reg[typ] {
		if existing.key == l.key {
			reg[typ][i] = l
			return
		}
	}
	reg[typ] = append(reg[typ], l)
}

// Unlisten removes every handler registered by owner, across all message
// types. Deterministic teardown for owners with explicit lifecycles; owners
// that simply become unreachable are skipped and pruned lazily instead.
func Unlisten[O any](d *Dispatcher, owner *O) {
	if owner == nil {
		return
	}
	key := any(weak.Make(owner))

	g := d.listeners.Lock()
	defer g.Unlock()
	reg := *g.Value()
	for typ, ls := range reg {
		kept := slices.DeleteFunc(ls, func(l *listener) bool { return l.key == key })
		if len(kept) == 0 {
			delete(reg, typ)
		} else {
			reg[typ] = kept
		}
	}
}

// Dispatch drains every pending message and delivers each, in arrival order,
// to the live handlers registered for its type. Call exactly once per
// consumer tick. Returns the number of messages drained.
func (d *Dispatcher) Dispatch() int {
	batch := d.queue.PopAll()
	for _, env := range batch {
		d.deliver(env)
	}
	d.drained.Add(int64(len(batch)))
	return len(batch)
}

// DispatchFor waits up to budget for the first message, then drains once.
// For frame-budgeted tick loops that would rather sleep in the queue than
// spin: a zero return means the budget elapsed with nothing to do.
func (d *Dispatcher) DispatchFor(budget time.Duration) int {
	if d.queue.Empty() && !d.queue.WaitTimeout(budget) {
		return 0
	}
	return d.Dispatch()
}

// Run is a headless consumer loop for tools and tests: it delivers messages
// as they arrive until ctx is cancelled (returning ctx.Err()) or the
// dispatcher is closed (returning nil). Interactive consumers should call
// Dispatch per tick instead; Run parks indefinitely between messages.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if env, ok := d.queue.TryPop(); ok {
			d.deliver(env)
			d.drained.Add(1)
			continue
		}
		if !d.queue.WaitContext(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
	}
}

// deliver routes one envelope. Runs on the consumer goroutine only.
func (d *Dispatcher) deliver(env Envelope) {
	typ := reflect.TypeOf(env.Msg)

	g := d.listeners.Lock()
	targets := slices.Clone((*g.Value())[typ])
	g.Unlock()

	var invoked, stale int
	panicked := false
	for _, l := range targets {
		owner, ok := l.resolve()
		if !ok {
			stale++
			d.prune(typ, l.key)
			continue
		}
		if !d.invoke(l, owner, env) {
			panicked = true
		}
		invoked++
	}

	outcome := OutcomeHandled
	switch {
	case panicked:
		outcome = OutcomePanicked
	case invoked > 0:
	case stale > 0:
		outcome = OutcomeStale
	default:
		outcome = OutcomeDropped
	}

	d.logger.Debug("dispatched message",
		"type", typ.String(),
		"seq", env.Seq,
		"handlers", invoked,
		"outcome", string(outcome),
	)

	if d.observer != nil {
		d.observer(TraceRecord{
			Seq:          env.Seq,
			Type:         typ.String(),
			Msg:          env.Msg,
			EnqueuedAt:   env.At,
			DispatchedAt: time.Now(),
			Handlers:     invoked,
			Outcome:      outcome,
		})
	}
}

// invoke runs one handler, converting a panic into a report. Returns false
// if the handler panicked.
func (d *Dispatcher) invoke(l *listener, owner any, env Envelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			herr := &HandlerError{
				MessageType: reflect.TypeOf(env.Msg).String(),
				Seq:         env.Seq,
				Recovered:   r,
			}
			d.logger.Error("message handler panicked",
				"type", herr.MessageType,
				"seq", herr.Seq,
				"panic", r,
			)
			if d.errHook != nil {
				d.errHook(herr)
			}
		}
	}()
	l.call(owner, env.Msg)
	return true
}

// prune removes a known-dead listener from the registry.
func (d *Dispatcher) prune(typ reflect.Type, key any) {
	g := d.listeners.Lock()
	defer g.Unlock()
	reg := *g.Value()
	kept := slices.DeleteFunc(reg[typ], func(l *listener) bool { return l.key == key })
	if len(kept) == 0 {
		delete(reg, typ)
	} else {
		reg[typ] = kept
	}
}

// Close closes the queue: pending messages are dropped without invocation
// and subsequent posts are rejected. Idempotent.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	return d.queue.Closed()
}

// Pending returns the number of messages waiting to be drained.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Posted returns the total number of messages accepted by Post/PostAll.
func (d *Dispatcher) Posted() int64 {
	return d.posted.Load()
}

// Drained returns the total number of messages taken off the queue by the
// consumer (regardless of outcome).
func (d *Dispatcher) Drained() int64 {
	return d.drained.Load()
}

// Clock returns the stamping sequencer.
func (d *Dispatcher) Clock() Sequencer {
	return d.clock
}
