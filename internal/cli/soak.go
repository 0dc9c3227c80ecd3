package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Uproxide/globed2/internal/harness"
	"github.com/Uproxide/globed2/internal/journal"
)

// SoakOptions holds flags for the soak command.
type SoakOptions struct {
	*RootOptions
	Scenario string
	Journal  string // optional - record the trace into this journal
}

// SoakResult holds the outcome of one soak run.
type SoakResult struct {
	Scenario     string   `json:"scenario"`
	SessionToken string   `json:"session_token"`
	Posted       int64    `json:"posted"`
	Drained      int64    `json:"drained"`
	Handled      int      `json:"handled"`
	Dropped      int      `json:"dropped"`
	Stale        int      `json:"stale"`
	Panicked     int      `json:"panicked"`
	Assertions   int      `json:"assertions"`
	Failures     []string `json:"failures,omitempty"`
}

// NewSoakCommand creates the soak command.
func NewSoakCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SoakOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Run a soak scenario against the dispatcher",
		Long: `Run a declarative soak scenario: spin up concurrent producers, drain
the dispatch queue on a consumer loop, and check the scenario's
assertions against the collected trace.

Exit codes:
  0 - All assertions passed
  1 - One or more assertions failed
  2 - Command error (scenario not found, invalid scenario, etc.)

Examples:
  globed-sync soak --scenario fifo_soak.yaml
  globed-sync soak --scenario burst.cue --journal ./trace.db
  globed-sync soak --scenario fifo_soak.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSoak(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "path to scenario file (.yaml, .yml or .cue) (required)")
	_ = cmd.MarkFlagRequired("scenario")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the trace into this SQLite journal")

	return cmd
}

func runSoak(opts *SoakOptions, cmd *cobra.Command) error {
	s, err := harness.LoadScenario(opts.Scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	result, err := harness.Run(s, soakLogger(opts.RootOptions, cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "soak run failed", err)
	}

	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		if err := result.Record(context.Background(), j); err != nil {
			return WrapExitError(ExitCommandError, "failed to record trace", err)
		}
	}

	out := SoakResult{
		Scenario:     s.Name,
		SessionToken: result.SessionToken,
		Posted:       result.Report.Posted,
		Drained:      result.Report.Drained,
		Handled:      result.Report.Handled,
		Dropped:      result.Report.Dropped,
		Stale:        result.Report.Stale,
		Panicked:     result.Report.Panicked,
		Assertions:   len(s.Assertions),
	}
	for _, ferr := range harness.Evaluate(result) {
		out.Failures = append(out.Failures, ferr.Error())
	}

	if opts.Format == "json" {
		return outputSoakJSON(cmd, out)
	}
	return outputSoakText(cmd, out)
}

// soakLogger builds the run logger: diagnostics go to stderr, debug level
// only under --verbose.
func soakLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	var w io.Writer = cmd.ErrOrStderr()
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// outputSoakJSON outputs the soak result as JSON.
func outputSoakJSON(cmd *cobra.Command, result SoakResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if len(result.Failures) > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_ASSERT",
			Message: fmt.Sprintf("%d assertion(s) failed", len(result.Failures)),
			Details: result.Failures,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, "soak assertions failed")
	}
	return nil
}

// outputSoakText outputs the soak result as text.
func outputSoakText(cmd *cobra.Command, result SoakResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Soak: %s\n", result.Scenario)
	fmt.Fprintf(w, "Session: %s\n", result.SessionToken)
	fmt.Fprintf(w, "  Posted:   %d\n", result.Posted)
	fmt.Fprintf(w, "  Drained:  %d\n", result.Drained)
	fmt.Fprintf(w, "  Handled:  %d\n", result.Handled)
	fmt.Fprintf(w, "  Dropped:  %d\n", result.Dropped)
	fmt.Fprintf(w, "  Stale:    %d\n", result.Stale)
	fmt.Fprintf(w, "  Panicked: %d\n", result.Panicked)
	fmt.Fprintln(w)

	if len(result.Failures) == 0 {
		fmt.Fprintf(w, "✓ %d assertion(s) passed\n", result.Assertions)
		return nil
	}

	for _, f := range result.Failures {
		fmt.Fprintf(w, "✗ %s\n", f)
	}
	fmt.Fprintf(w, "✗ %d of %d assertion(s) failed\n", len(result.Failures), result.Assertions)
	return NewExitError(ExitFailure, "soak assertions failed")
}
