package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/agentdeck/internal/logx"
	"pkt.systems/agentdeck/schema"
)

// StreamEvent is sent to SSE clients. Delivery is at-most-once: a slow
// client drops events, and the stream is a hint to refetch, not a
// replicated log. The bounded in-hub history gives reconnecting
// clients a best-effort replay via Last-Event-ID.
type StreamEvent struct {
	Seq       uint64       `json:"seq,omitempty"`
	Event     schema.Event `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
}

// Hub broadcasts unified events to all connected SSE clients.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

// NewHub constructs a hub with the given replay history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnUnifiedEvent implements core.EventSink.
func (h *Hub) OnUnifiedEvent(event schema.Event) {
	logx.Ctx(context.Background()).Trace("hub event", "kind", event.Kind)
	h.publish(StreamEvent{
		Event:     event,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber and returns its channel, an
// unsubscribe func, and the current sequence number.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	subs := len(h.subs)
	h.mu.Unlock()
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", subs)
	unsub := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		remaining := len(h.subs)
		h.mu.Unlock()
		log.Info("hub unsubscribe", "subs", remaining)
	}
	return ch, unsub, seq
}

// Replay returns retained events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	subs := make([]chan StreamEvent, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "kind", event.Event.Kind, "dropped", dropped)
	}
}
