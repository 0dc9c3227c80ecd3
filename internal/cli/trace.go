package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Uproxide/globed2/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Session string
	Kind    string // optional - filter to one message kind
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	Producer string `json:"producer"`
	Payload  string `json:"payload,omitempty"`
	Handlers int    `json:"handlers"`
	Outcome  string `json:"outcome"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Handled     int `json:"handled"`
	Dropped     int `json:"dropped"`
	Stale       int `json:"stale"`
	Panicked    int `json:"panicked"`
}

// TraceResult holds the complete trace output for one session.
type TraceResult struct {
	SessionToken string       `json:"session_token"`
	Timeline     []TraceEvent `json:"timeline"`
	Stats        TraceStats   `json:"stats"`
}

// SessionListEntry is one row of the session list shown when no --session
// is given.
type SessionListEntry struct {
	Token     string `json:"token"`
	StartedAt string `json:"started_at"`
	Events    int    `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled dispatch traces",
		Long: `Inspect the trace journal.

Without --session, lists the journaled sessions. With --session, prints
that session's timeline: one line per dispatched message with its seq,
kind, producer, handler count and outcome.

Examples:
  globed-sync trace --journal ./trace.db
  globed-sync trace --journal ./trace.db --session burst-cue-session
  globed-sync trace --journal ./trace.db --session burst-cue-session --kind chat
  globed-sync trace --journal ./trace.db --session burst-cue-session --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one message kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Session == "" {
		return listSessions(ctx, j, opts, cmd)
	}

	events, err := j.Events(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if len(events) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				SessionToken: opts.Session,
				Timeline:     []TraceEvent{},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for session: %s\n", opts.Session)
		return nil
	}

	result := TraceResult{SessionToken: opts.Session}
	for _, ev := range events {
		switch ev.Outcome {
		case "handled":
			result.Stats.Handled++
		case "dropped":
			result.Stats.Dropped++
		case "stale":
			result.Stats.Stale++
		case "panicked":
			result.Stats.Panicked++
		}
		if opts.Kind != "" && ev.MessageType != opts.Kind {
			continue
		}
		te := TraceEvent{
			Seq:      ev.Seq,
			Type:     ev.MessageType,
			Producer: ev.Producer,
			Handlers: ev.Handlers,
			Outcome:  ev.Outcome,
		}
		if opts.Verbose {
			te.Payload = ev.Payload
		}
		result.Timeline = append(result.Timeline, te)
	}
	result.Stats.TotalEvents = len(events)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// listSessions prints the journaled sessions when no --session is given.
func listSessions(ctx context.Context, j *journal.Journal, opts *TraceOptions, cmd *cobra.Command) error {
	infos, err := j.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if opts.Format == "json" {
		entries := make([]SessionListEntry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, SessionListEntry{
				Token:     info.Token,
				StartedAt: info.StartedAt.Format(time.RFC3339Nano),
				Events:    info.Events,
			})
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: entries})
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No sessions found in journal.")
		return nil
	}
	fmt.Fprintf(w, "Sessions: %d\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(w, "  %s  events=%d  started=%s\n",
			info.Token, info.Events, info.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: result})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Session: %s\n", result.SessionToken)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, ev := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s %s handlers=%d %s\n",
				ev.Seq, ev.Type, ev.Producer, ev.Handlers, ev.Outcome)
			if verbose && ev.Payload != "" {
				fmt.Fprintf(w, "       Payload: %s\n", ev.Payload)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Handled:      %d\n", result.Stats.Handled)
	fmt.Fprintf(w, "  Dropped:      %d\n", result.Stats.Dropped)
	fmt.Fprintf(w, "  Stale:        %d\n", result.Stats.Stale)
	fmt.Fprintf(w, "  Panicked:     %d\n", result.Stats.Panicked)

	return nil
}
