package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uproxide/globed2/internal/harness"
	"github.com/Uproxide/globed2/internal/journal"
)

// recordedJournal runs the smoke scenario and records its trace into a fresh
// journal, returning the journal path.
func recordedJournal(t *testing.T) string {
	t.Helper()

	s, err := harness.LoadScenario(filepath.Join("testdata", "smoke.yaml"))
	require.NoError(t, err)

	result, err := harness.Run(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "trace.db")
	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, result.Record(context.Background(), j))

	return dbPath
}

func TestReplayMissingJournalFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	j.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--journal", dbPath})

	err = cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No sessions found")
}

func TestReplayUnknownSession(t *testing.T) {
	dbPath := recordedJournal(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--journal", dbPath, "--session", "no-such-session"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayRecordedSessionIsDeterministic(t *testing.T) {
	dbPath := recordedJournal(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--journal", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Session: cli-smoke-session")
	assert.Contains(t, buf.String(), "All sessions replayed deterministically")
}

func TestReplayJSONOutput(t *testing.T) {
	dbPath := recordedJournal(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--journal", dbPath, "--session", "cli-smoke-session"})

	err := cmd.Execute()
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)

	data, ok := response.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["all_deterministic"])
}
