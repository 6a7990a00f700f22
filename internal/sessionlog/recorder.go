// Package sessionlog appends one JSON line per processed turn to a
// per-session file, as an offline record of what each turn understood,
// queried, and answered.
package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"orgfinder/internal/model"
)

// TurnRecord is one exported turn. Fields are nil/zero when the stage they
// describe never ran.
type TurnRecord struct {
	SessionID      string                `json:"session_id"`
	TurnIndex      int                   `json:"turn_index"`
	Timestamp      time.Time             `json:"timestamp"`
	UserText       string                `json:"user_text"`
	Intent         model.Intent          `json:"intent"`
	Mode           string                `json:"mode"`
	InheritSpatial bool                  `json:"inherit_spatial,omitempty"`
	Spatial        *model.SpatialContext `json:"spatial,omitempty"`
	QueryText      string                `json:"query_text,omitempty"`
	QueryClauses   []string              `json:"query_clauses,omitempty"`
	ResultCount    int                   `json:"result_count"`
	Expanded       bool                  `json:"expanded,omitempty"`
	Outcome        string                `json:"outcome"`
	Answer         string                `json:"answer"`
	TokenUsage     model.TokenUsage      `json:"token_usage"`
	StageMillis    map[string]int64      `json:"stage_millis,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Recorder appends turn records as JSON lines, one file per session.
type Recorder struct {
	dir string
	log zerolog.Logger

	mu    sync.Mutex
	files map[string]*os.File
}

func NewRecorder(dir string, log zerolog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session log directory: %w", err)
	}
	return &Recorder{dir: dir, log: log, files: make(map[string]*os.File)}, nil
}

// Record appends one turn. Failures are logged, never propagated: the side
// channel must not fail a turn that already succeeded.
func (r *Recorder) Record(record TurnRecord) {
	line, err := sonic.Marshal(record)
	if err != nil {
		r.log.Error().Err(err).Msg("session log encode failed")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	file, err := r.file(record.SessionID)
	if err != nil {
		r.log.Error().Err(err).Msg("session log open failed")
		return
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		r.log.Error().Err(err).Msg("session log write failed")
	}
}

func (r *Recorder) file(sessionID string) (*os.File, error) {
	if f, ok := r.files[sessionID]; ok {
		return f, nil
	}
	path := filepath.Join(r.dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	r.files[sessionID] = f
	return f, nil
}

// Close flushes and closes every open session file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.files, id)
	}
	return firstErr
}
