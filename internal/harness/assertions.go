package harness

import (
	"fmt"
	"slices"
	"strings"
)

// Assertion is one declarative check against a finished run.
type Assertion struct {
	// Type selects the check:
	//   - "no_loss": every posted message was drained and traced
	//   - "no_duplication": no seq or (kind, producer, index) seen twice
	//   - "fifo_per_producer": each collector saw each producer's indices in order
	//   - "routing": collectors only got their own kind, in the expected amount
	//   - "detached_skipped": detached kinds were never delivered
	//   - "count": exactly N trace events of Kind
	Type string `yaml:"type" json:"type"`

	// Kind qualifies "count".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// N is the expected count for "count".
	N int `yaml:"n,omitempty" json:"n,omitempty"`
}

var assertionTypes = []string{
	"no_loss", "no_duplication", "fifo_per_producer", "routing", "detached_skipped", "count",
}

func (a *Assertion) validate() error {
	if !slices.Contains(assertionTypes, a.Type) {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Type == "count" {
		if !slices.Contains(KnownKinds, a.Kind) {
			return fmt.Errorf("count assertion needs a known kind, got %q", a.Kind)
		}
		if a.N < 0 {
			return fmt.Errorf("count assertion needs n >= 0")
		}
	}
	return nil
}

// AssertionError reports one failed assertion with enough context to debug
// the run without re-running it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %s", e.Actual)
	return buf.String()
}

func fail(typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual}
}

// Evaluate runs every scenario assertion against the result, returning all
// failures.
func Evaluate(result *Result) []error {
	var errs []error
	for _, a := range result.Scenario.Assertions {
		if err := evaluateOne(result, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluateOne(result *Result, a Assertion) error {
	switch a.Type {
	case "no_loss":
		return assertNoLoss(result)
	case "no_duplication":
		return assertNoDuplication(result)
	case "fifo_per_producer":
		return assertFIFOPerProducer(result)
	case "routing":
		return assertRouting(result)
	case "detached_skipped":
		return assertDetachedSkipped(result)
	case "count":
		return assertCount(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertNoLoss(r *Result) error {
	total := int64(r.Scenario.Total())
	if r.Report.Posted != total {
		return fail("no_loss",
			fmt.Sprintf("%d messages posted", total),
			fmt.Sprintf("%d accepted by the queue", r.Report.Posted))
	}
	if r.Report.Drained != total {
		return fail("no_loss",
			fmt.Sprintf("%d messages drained", total),
			fmt.Sprintf("%d drained", r.Report.Drained))
	}
	if int64(len(r.Trace)) != total {
		return fail("no_loss",
			fmt.Sprintf("%d trace events", total),
			fmt.Sprintf("%d trace events", len(r.Trace)))
	}
	return nil
}

func assertNoDuplication(r *Result) error {
	seqs := make(map[int64]bool, len(r.Trace))
	for _, ev := range r.Trace {
		if seqs[ev.Seq] {
			return fail("no_duplication",
				"each seq traced once",
				fmt.Sprintf("seq %d traced twice", ev.Seq))
		}
		seqs[ev.Seq] = true
	}

	type slot struct {
		kind     string
		producer int
		index    int
	}
	seen := make(map[slot]bool)
	for kind, c := range r.Collectors {
		for _, rec := range c.Received {
			s := slot{kind: kind, producer: rec.Producer, index: rec.Index}
			if seen[s] {
				return fail("no_duplication",
					"each message delivered at most once",
					fmt.Sprintf("%s message %d from producer %d delivered twice", kind, rec.Index, rec.Producer))
			}
			seen[s] = true
		}
	}
	return nil
}

func assertFIFOPerProducer(r *Result) error {
	for kind, c := range r.Collectors {
		last := make(map[int]int)
		for _, rec := range c.Received {
			if prev, ok := last[rec.Producer]; ok && rec.Index <= prev {
				return fail("fifo_per_producer",
					fmt.Sprintf("%s indices from producer %d strictly increasing", kind, rec.Producer),
					fmt.Sprintf("index %d after %d", rec.Index, prev))
			}
			last[rec.Producer] = rec.Index
		}
	}
	return nil
}

func assertRouting(r *Result) error {
	for kind, c := range r.Collectors {
		want := r.Scenario.ExpectedPerKind(kind) * r.Scenario.Producers
		if len(c.Received) != want {
			return fail("routing",
				fmt.Sprintf("%d %s messages delivered to their collector", want, kind),
				fmt.Sprintf("%d delivered", len(c.Received)))
		}
	}
	// Kinds produced but neither listened nor detached must trace as drops.
	for _, ev := range r.Trace {
		_, listened := r.Collectors[ev.MessageType]
		_, detached := r.Detached[ev.MessageType]
		if !listened && !detached && ev.Outcome != "dropped" {
			return fail("routing",
				fmt.Sprintf("unlistened kind %q dropped silently", ev.MessageType),
				fmt.Sprintf("seq %d outcome %q", ev.Seq, ev.Outcome))
		}
	}
	return nil
}

func assertDetachedSkipped(r *Result) error {
	for kind, c := range r.Detached {
		if len(c.Received) != 0 {
			return fail("detached_skipped",
				fmt.Sprintf("detached %s collector receives nothing", kind),
				fmt.Sprintf("%d messages delivered after teardown", len(c.Received)))
		}
	}
	for _, ev := range r.Trace {
		if _, detached := r.Detached[ev.MessageType]; detached && ev.Outcome == "handled" {
			return fail("detached_skipped",
				fmt.Sprintf("pending %s messages skipped at teardown", ev.MessageType),
				fmt.Sprintf("seq %d was handled", ev.Seq))
		}
	}
	return nil
}

func assertCount(r *Result, a Assertion) error {
	n := 0
	for _, ev := range r.Trace {
		if ev.MessageType == a.Kind {
			n++
		}
	}
	if n != a.N {
		return fail("count",
			fmt.Sprintf("%d %s events in trace", a.N, a.Kind),
			fmt.Sprintf("%d events", n))
	}
	return nil
}
