package schema

import (
	"encoding/json"
	"fmt"
)

// ResultPayload is the sealed result union; exactly one concrete type exists
// per command kind.
type ResultPayload interface {
	resultKind() CommandKind
}

// Result is the typed, successful outcome of executing a command. On the
// wire the payload fields are inlined next to kind.
type Result struct {
	Kind    CommandKind
	Payload ResultPayload
}

// NewResult wraps a result payload in its envelope.
func NewResult(payload ResultPayload) Result {
	return Result{Kind: payload.resultKind(), Payload: payload}
}

// ListThreadsResult is one merged page of thread summaries.
type ListThreadsResult struct {
	ThreadPage
}

// CreateThreadResult carries the authoritative initial thread snapshot,
// produced by the follow-up read, not by create's own response.
type CreateThreadResult struct {
	Thread Thread `json:"thread"`
}

// ReadThreadResult carries a full replacement thread value.
type ReadThreadResult struct {
	Thread Thread `json:"thread"`
}

// SendMessageResult acknowledges a sent message.
type SendMessageResult struct{}

// InterruptResult acknowledges a delivered interrupt.
type InterruptResult struct{}

// ListModelsResult lists the provider's models.
type ListModelsResult struct {
	Data []Model `json:"data"`
}

// ListCollaborationModesResult lists the provider's collaboration modes.
type ListCollaborationModesResult struct {
	Data []CollaborationMode `json:"data"`
}

// SetCollaborationModeResult echoes the mode and owner so callers can detect
// whether their optimistic update agreed with the backend.
type SetCollaborationModeResult struct {
	Mode          string   `json:"mode"`
	OwnerClientID ClientID `json:"ownerClientId,omitempty"`
}

// SubmitUserInputResult echoes the request id and owner.
type SubmitUserInputResult struct {
	RequestID     RequestID `json:"requestId"`
	OwnerClientID ClientID  `json:"ownerClientId,omitempty"`
}

// LiveStateError reports a live-state stream reduction that failed midway.
// Which applied patches survive is the consumer's policy decision.
type LiveStateError struct {
	Message    string `json:"message"`
	EventIndex int    `json:"eventIndex,omitempty"`
	PatchIndex int    `json:"patchIndex,omitempty"`
}

// ReadLiveStateResult carries in-memory conversation state. A nil
// ConversationState means no live state exists yet for the thread; that is a
// signal to fall back to the persisted read, not a failure.
type ReadLiveStateResult struct {
	ThreadID          ThreadID        `json:"threadId"`
	OwnerClientID     ClientID        `json:"ownerClientId,omitempty"`
	ConversationState json.RawMessage `json:"conversationState"`
	LiveStateError    *LiveStateError `json:"liveStateError,omitempty"`
}

// ReadStreamEventsResult carries the raw event backlog, each entry
// re-validated as generic JSON.
type ReadStreamEventsResult struct {
	OwnerClientID ClientID          `json:"ownerClientId,omitempty"`
	Events        []json.RawMessage `json:"events"`
}

// ListProjectDirectoriesResult lists known project directories.
type ListProjectDirectoriesResult struct {
	Data []string `json:"data"`
}

func (ListThreadsResult) resultKind() CommandKind            { return CmdListThreads }
func (CreateThreadResult) resultKind() CommandKind           { return CmdCreateThread }
func (ReadThreadResult) resultKind() CommandKind             { return CmdReadThread }
func (SendMessageResult) resultKind() CommandKind            { return CmdSendMessage }
func (InterruptResult) resultKind() CommandKind              { return CmdInterrupt }
func (ListModelsResult) resultKind() CommandKind             { return CmdListModels }
func (ListCollaborationModesResult) resultKind() CommandKind { return CmdListCollaborationModes }
func (SetCollaborationModeResult) resultKind() CommandKind   { return CmdSetCollaborationMode }
func (SubmitUserInputResult) resultKind() CommandKind        { return CmdSubmitUserInput }
func (ReadLiveStateResult) resultKind() CommandKind          { return CmdReadLiveState }
func (ReadStreamEventsResult) resultKind() CommandKind       { return CmdReadStreamEvents }
func (ListProjectDirectoriesResult) resultKind() CommandKind { return CmdListProjectDirectories }

// resultDecoders is the per-kind payload coverage map.
var resultDecoders = map[CommandKind]func() ResultPayload{
	CmdListThreads:            func() ResultPayload { return &ListThreadsResult{} },
	CmdCreateThread:           func() ResultPayload { return &CreateThreadResult{} },
	CmdReadThread:             func() ResultPayload { return &ReadThreadResult{} },
	CmdSendMessage:            func() ResultPayload { return &SendMessageResult{} },
	CmdInterrupt:              func() ResultPayload { return &InterruptResult{} },
	CmdListModels:             func() ResultPayload { return &ListModelsResult{} },
	CmdListCollaborationModes: func() ResultPayload { return &ListCollaborationModesResult{} },
	CmdSetCollaborationMode:   func() ResultPayload { return &SetCollaborationModeResult{} },
	CmdSubmitUserInput:        func() ResultPayload { return &SubmitUserInputResult{} },
	CmdReadLiveState:          func() ResultPayload { return &ReadLiveStateResult{} },
	CmdReadStreamEvents:       func() ResultPayload { return &ReadStreamEventsResult{} },
	CmdListProjectDirectories: func() ResultPayload { return &ListProjectDirectoriesResult{} },
}

// MarshalJSON inlines the payload fields next to kind.
func (r Result) MarshalJSON() ([]byte, error) {
	return marshalEnvelope(r.Payload, map[string]any{"kind": r.Kind})
}

// UnmarshalJSON decodes the payload by its kind discriminator.
func (r *Result) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind CommandKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	decoder, ok := resultDecoders[head.Kind]
	if !ok {
		return fmt.Errorf("unknown result kind %q", head.Kind)
	}
	payload := decoder()
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	r.Kind = head.Kind
	r.Payload = payload
	return nil
}
