package schema

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the server→client push union. Events are advisory
// triggers to re-fetch: delivery is at-most-once and may be missed, so
// consumers must keep a polling path as a backstop.
type EventKind string

const (
	// EventProviderStateChanged signals an (enabled, connected, lastError)
	// tuple change.
	EventProviderStateChanged EventKind = "providerStateChanged"
	// EventThreadUpdated carries a full replacement thread payload.
	EventThreadUpdated EventKind = "threadUpdated"
	// EventUserInputRequested signals a new pending user-input request.
	EventUserInputRequested EventKind = "userInputRequested"
	// EventUserInputResolved signals a resolved user-input request.
	EventUserInputResolved EventKind = "userInputResolved"
	// EventError carries an out-of-band error notice.
	EventError EventKind = "error"
)

// AllEventKinds lists every event kind.
var AllEventKinds = []EventKind{
	EventProviderStateChanged,
	EventThreadUpdated,
	EventUserInputRequested,
	EventUserInputResolved,
	EventError,
}

// EventPayload is the sealed event union.
type EventPayload interface {
	eventKind() EventKind
}

// Event is an asynchronous, best-effort push notification. On the wire the
// payload fields are inlined next to kind.
type Event struct {
	Kind    EventKind
	Payload EventPayload
}

// NewEvent wraps an event payload in its envelope.
func NewEvent(payload EventPayload) Event {
	return Event{Kind: payload.eventKind(), Payload: payload}
}

// ProviderStateChangedEvent reflects a provider runtime state transition.
type ProviderStateChangedEvent struct {
	Provider  ProviderID `json:"provider"`
	Enabled   bool       `json:"enabled"`
	Connected bool       `json:"connected"`
	LastError string     `json:"lastError,omitempty"`
}

// ThreadUpdatedEvent carries a full replacement thread value.
type ThreadUpdatedEvent struct {
	ThreadID ThreadID   `json:"threadId"`
	Provider ProviderID `json:"provider"`
	Thread   Thread     `json:"thread"`
}

// UserInputRequestedEvent signals a new pending user-input request.
type UserInputRequestedEvent struct {
	ThreadID ThreadID         `json:"threadId"`
	Request  UserInputRequest `json:"request"`
}

// UserInputResolvedEvent signals a resolved user-input request.
type UserInputResolvedEvent struct {
	ThreadID  ThreadID  `json:"threadId"`
	RequestID RequestID `json:"requestId"`
}

// ErrorEvent carries an out-of-band error notice.
type ErrorEvent struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (ProviderStateChangedEvent) eventKind() EventKind { return EventProviderStateChanged }
func (ThreadUpdatedEvent) eventKind() EventKind        { return EventThreadUpdated }
func (UserInputRequestedEvent) eventKind() EventKind   { return EventUserInputRequested }
func (UserInputResolvedEvent) eventKind() EventKind    { return EventUserInputResolved }
func (ErrorEvent) eventKind() EventKind                { return EventError }

// eventDecoders is the per-kind payload coverage map.
var eventDecoders = map[EventKind]func() EventPayload{
	EventProviderStateChanged: func() EventPayload { return &ProviderStateChangedEvent{} },
	EventThreadUpdated:        func() EventPayload { return &ThreadUpdatedEvent{} },
	EventUserInputRequested:   func() EventPayload { return &UserInputRequestedEvent{} },
	EventUserInputResolved:    func() EventPayload { return &UserInputResolvedEvent{} },
	EventError:                func() EventPayload { return &ErrorEvent{} },
}

// MarshalJSON inlines the payload fields next to kind.
func (e Event) MarshalJSON() ([]byte, error) {
	return marshalEnvelope(e.Payload, map[string]any{"kind": e.Kind})
}

// UnmarshalJSON decodes the payload by its kind discriminator.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	decoder, ok := eventDecoders[head.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind %q", head.Kind)
	}
	payload := decoder()
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	e.Kind = head.Kind
	e.Payload = payload
	return nil
}
