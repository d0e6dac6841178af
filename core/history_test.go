package core

import (
	"fmt"
	"testing"
)

func TestHistoryEvictsOldest(t *testing.T) {
	history := NewHistory(3)
	for i := 0; i < 5; i++ {
		history.Append("client", "inbound", []byte(fmt.Sprintf(`{"n":%d}`, i)), nil)
	}
	if history.Len() != 3 {
		t.Fatalf("Len = %d, want 3", history.Len())
	}
	entries := history.Entries(0)
	if string(entries[0].Payload) != `{"n":2}` || string(entries[2].Payload) != `{"n":4}` {
		t.Fatalf("window: %s .. %s", entries[0].Payload, entries[2].Payload)
	}
}

func TestHistoryEntriesLimit(t *testing.T) {
	history := NewHistory(10)
	for i := 0; i < 4; i++ {
		history.Append("client", "inbound", []byte(fmt.Sprintf(`{"n":%d}`, i)), nil)
	}
	entries := history.Entries(2)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if string(entries[0].Payload) != `{"n":2}` {
		t.Fatalf("oldest in window: %s", entries[0].Payload)
	}
}

func TestHistoryCopiesPayload(t *testing.T) {
	history := NewHistory(5)
	buf := []byte(`{"a":1}`)
	history.Append("client", "inbound", buf, nil)
	buf[2] = 'z'
	if got := string(history.Entries(0)[0].Payload); got != `{"a":1}` {
		t.Fatalf("payload aliased caller buffer: %s", got)
	}
}

func TestHistoryAssignsUniqueIDs(t *testing.T) {
	history := NewHistory(5)
	first := history.Append("client", "inbound", []byte(`{}`), nil)
	second := history.Append("client", "inbound", []byte(`{}`), nil)
	if first == "" || first == second {
		t.Fatalf("ids: %q %q", first, second)
	}
}
