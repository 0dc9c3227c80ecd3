package harness

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RenderTrace renders a result to the stable text form compared against
// golden files. Wall-clock fields and payloads are deliberately omitted;
// only deterministic scenarios (one producer, fixed session token) should be
// golden-tested.
func RenderTrace(r *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", r.Scenario.Name)
	fmt.Fprintf(&buf, "session: %s\n", r.SessionToken)
	fmt.Fprintf(&buf, "trace:\n")
	for _, ev := range r.Trace {
		fmt.Fprintf(&buf, "  seq=%d type=%s producer=%s handlers=%d outcome=%s\n",
			ev.Seq, ev.MessageType, ev.Producer, ev.Handlers, ev.Outcome)
	}
	fmt.Fprintf(&buf, "report: posted=%d drained=%d handled=%d dropped=%d stale=%d panicked=%d\n",
		r.Report.Posted, r.Report.Drained,
		r.Report.Handled, r.Report.Dropped, r.Report.Stale, r.Report.Panicked)
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares the rendered trace against
// testdata/golden/{scenario.Name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("scenario %s failed to run: %v", s.Name, err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, s.Name, RenderTrace(result))
	return result
}
