package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Uproxide/globed2/atomicval"
	"github.com/Uproxide/globed2/dispatch"
	"github.com/Uproxide/globed2/internal/journal"
	"github.com/Uproxide/globed2/internal/testutil"
)

// Report aggregates the outcome counts of one run.
type Report struct {
	Posted   int64
	Drained  int64
	Handled  int
	Dropped  int
	Stale    int
	Panicked int
}

// Result is everything a finished run exposes to assertions and rendering.
type Result struct {
	Scenario     *Scenario
	SessionToken string
	Trace        []journal.Event
	Collectors   map[string]*Collector // kind -> live collector
	Detached     map[string]*Collector // kind -> collector torn down pre-run
	Report       Report
}

// Run executes a scenario:spins up the producers, drains on this goroutine
// as the consumer, and returns the collected trace. The returned error
// covers harness mechanics only; property violations are the assertions'
// business.
func Run(s *Scenario, logger *slog.Logger) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var gen dispatch.TokenGenerator
	if s.SessionToken != "" {
		gen = dispatch.NewFixedTokenGenerator(s.SessionToken)
	}

	result := &Result{
		Scenario:   s,
		Collectors: make(map[string]*Collector),
		Detached:   make(map[string]*Collector),
	}

	var sess *dispatch.Session
	observer := func(r dispatch.TraceRecord) {
		producer, _ := originOf(r.Msg)
		payload, err := json.Marshal(r.Msg)
		if err != nil {
			payload = []byte("{}")
		}
		result.Trace = append(result.Trace, journal.Event{
			SessionToken: sess.Token(),
			Seq:          r.Seq,
			MessageType:  kindOf(r.Msg),
			Producer:     fmt.Sprintf("producer-%d", producer),
			Payload:      string(payload),
			EnqueuedNS:   r.EnqueuedAt.UnixNano(),
			DispatchedNS: r.DispatchedAt.UnixNano(),
			Handlers:     r.Handlers,
			Outcome:      string(r.Outcome),
		})
		switch r.Outcome {
		case dispatch.OutcomeHandled:
			result.Report.Handled++
		case dispatch.OutcomeDropped:
			result.Report.Dropped++
		case dispatch.OutcomeStale:
			result.Report.Stale++
		case dispatch.OutcomePanicked:
			result.Report.Panicked++
		}
	}

	sessOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithObserver(observer),
	}
	// Fixed-token scenarios are the reproducible ones (golden traces, replay
	// fixtures); stamp them with the test clock rather than whatever the
	// production default is.
	if s.SessionToken != "" {
		sessOpts = append(sessOpts, dispatch.WithClock(testutil.NewDeterministicClock()))
	}
	sess = dispatch.NewSession(gen, sessOpts...)
	defer sess.Close()
	result.SessionToken = sess.Token()
	d := sess.Dispatcher()

	// Live listeners.
	for _, kind := range s.Listeners {
		c := &Collector{Kind: kind}
		registerCollector(d, c)
		result.Collectors[kind] = c
	}
	// Registered-then-torn-down listeners: their messages must be skipped,
	// never delivered late.
	for _, kind := range s.Detach {
		c := &Collector{Kind: kind}
		registerCollector(d, c)
		detachCollector(d, c)
		result.Detached[kind] = c
	}

	logger.Info("soak starting",
		"scenario", s.Name,
		"session", sess.Token(),
		"producers", s.Producers,
		"messages", s.Total(),
	)

	// Producers, held at a start line for real contention.
	gate := testutil.NewGate()
	var producersDone atomicval.Bool
	var wg sync.WaitGroup
	for p := 0; p < s.Producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			gate.Wait()
			for i := 0; i < s.MessagesPerProducer; i++ {
				kind := s.Types[i%len(s.Types)]
				sess.Post(makeMessage(kind, p, i))
			}
		}(p)
	}
	go func() {
		wg.Wait()
		producersDone.Store(true)
	}()
	gate.Open()

	// Consumer tick loop: drain each tick until the producers have finished
	// and nothing is left in the queue.
	budget := s.TickBudget()
	for {
		d.DispatchFor(budget)
		if producersDone.Load() && d.Pending() == 0 {
			break
		}
	}

	result.Report.Posted = d.Posted()
	result.Report.Drained = d.Drained()

	logger.Info("soak finished",
		"scenario", s.Name,
		"posted", result.Report.Posted,
		"handled", result.Report.Handled,
		"dropped", result.Report.Dropped,
		"stale", result.Report.Stale,
		"panicked", result.Report.Panicked,
	)

	return result, nil
}

// Record persists the run's trace into a journal.
func (r *Result) Record(ctx context.Context, j *journal.Journal) error {
	started := time.Now()
	if len(r.Trace) > 0 {
		started = time.Unix(0, r.Trace[0].EnqueuedNS)
	}
	if err := j.BeginSession(ctx, r.SessionToken, started); err != nil {
		return err
	}
	for _, ev := range r.Trace {
		if err := j.Append(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
