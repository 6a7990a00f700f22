package sessionlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
)

func TestRecorderAppendsOneLinePerTurn(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, zerolog.Nop())
	require.NoError(t, err)

	r.Record(TurnRecord{
		SessionID: "s1",
		TurnIndex: 1,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		UserText:  "free wifi near city hall",
		Intent:    model.Intent{ServiceKeywords: "free wifi", LocationKeywords: "near city hall"},
		Mode:      "independent",
		Outcome:   "answered",
		Answer:    "Try the Free Library.",
	})
	r.Record(TurnRecord{SessionID: "s1", TurnIndex: 2, Outcome: "reused", Answer: "Closed Sunday."})
	r.Record(TurnRecord{SessionID: "s2", TurnIndex: 1, Outcome: "no_matches"})
	require.NoError(t, r.Close())

	lines := readLines(t, filepath.Join(dir, "s1.jsonl"))
	require.Len(t, lines, 2)

	var first TurnRecord
	require.NoError(t, sonic.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "free wifi near city hall", first.UserText)
	assert.Equal(t, "answered", first.Outcome)
	assert.Equal(t, "free wifi", first.Intent.ServiceKeywords)

	assert.Len(t, readLines(t, filepath.Join(dir, "s2.jsonl")), 1)
}

func TestRecorderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	r.Record(TurnRecord{SessionID: "s1", TurnIndex: 1, Outcome: "answered"})
	require.NoError(t, r.Close())

	r, err = NewRecorder(dir, zerolog.Nop())
	require.NoError(t, err)
	r.Record(TurnRecord{SessionID: "s1", TurnIndex: 2, Outcome: "reused"})
	require.NoError(t, r.Close())

	assert.Len(t, readLines(t, filepath.Join(dir, "s1.jsonl")), 2)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
