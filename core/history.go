package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCapacity = 2000

// HistoryEntry is one recorded protocol exchange. Entries are immutable
// once appended.
type HistoryEntry struct {
	ID        string            `json:"id"`
	Timestamp int64             `json:"timestamp"`
	Source    string            `json:"source"`
	Direction string            `json:"direction"`
	Payload   json.RawMessage   `json:"payload"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// History is a bounded in-memory ring of protocol exchanges. When full,
// the oldest entry is evicted.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	cap     int
}

// NewHistory builds a ring with the given capacity; zero or negative
// means the default.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &History{cap: capacity}
}

// Append records one exchange and returns its generated id. The
// payload is copied; callers may reuse their buffer.
func (h *History) Append(source, direction string, payload []byte, meta map[string]string) string {
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().Unix(),
		Source:    source,
		Direction: direction,
		Payload:   append(json.RawMessage(nil), payload...),
		Meta:      meta,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
	return entry.ID
}

// Entries returns up to limit most recent entries, oldest first. A
// non-positive limit returns everything.
func (h *History) Entries(limit int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]HistoryEntry(nil), entries...)
}

// Len reports the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
