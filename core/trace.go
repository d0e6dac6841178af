package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkt.systems/agentdeck/schema"
)

// TraceInfo describes one trace session.
type TraceInfo struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Started int64  `json:"started"`
	Events  int    `json:"events"`
}

// Tracer writes protocol exchanges to an NDJSON file. At most one trace
// is active at a time; starting over an active trace fails rather than
// silently rotating.
type Tracer struct {
	dir string

	mu     sync.Mutex
	file   *os.File
	info   TraceInfo
	active bool
}

// NewTracer builds a tracer that defaults new trace files into dir.
func NewTracer(dir string) *Tracer {
	return &Tracer{dir: dir}
}

// Start opens a new trace. An empty path picks a timestamped file under
// the tracer's directory.
func (t *Tracer) Start(path string) (TraceInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return TraceInfo{}, fmt.Errorf("trace %s already writing to %s: %w", t.info.ID, t.info.Path, schema.ErrTraceActive)
	}
	if path == "" {
		if err := os.MkdirAll(t.dir, 0o755); err != nil {
			return TraceInfo{}, fmt.Errorf("create trace dir: %w", err)
		}
		path = filepath.Join(t.dir, fmt.Sprintf("trace-%s.ndjson", time.Now().Format("20060102-150405")))
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return TraceInfo{}, fmt.Errorf("open trace file: %w", err)
	}
	t.file = file
	t.info = TraceInfo{ID: uuid.NewString(), Path: path, Started: time.Now().Unix()}
	t.active = true
	return t.info, nil
}

// Stop closes the active trace and returns its final stats.
func (t *Tracer) Stop() (TraceInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return TraceInfo{}, schema.ErrTraceNotActive
	}
	info := t.info
	err := t.file.Close()
	t.file = nil
	t.active = false
	t.info = TraceInfo{}
	if err != nil {
		return info, fmt.Errorf("close trace file: %w", err)
	}
	return info, nil
}

// Record appends one entry to the active trace. With no active trace it
// is a no-op, so callers can record unconditionally.
func (t *Tracer) Record(entry any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := t.file.Write(data); err != nil {
		return fmt.Errorf("write trace entry: %w", err)
	}
	t.info.Events++
	return nil
}

// Active reports whether a trace is currently writing.
func (t *Tracer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
