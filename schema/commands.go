package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandKind discriminates the unified command union. Command kinds and
// feature ids are in strict 1:1 correspondence; CommandFeature and
// FeatureCommandKind hold the bijection.
type CommandKind string

const (
	// CmdListThreads lists threads.
	CmdListThreads CommandKind = "listThreads"
	// CmdCreateThread creates a thread.
	CmdCreateThread CommandKind = "createThread"
	// CmdReadThread reads one thread.
	CmdReadThread CommandKind = "readThread"
	// CmdSendMessage sends a message.
	CmdSendMessage CommandKind = "sendMessage"
	// CmdInterrupt interrupts a running turn.
	CmdInterrupt CommandKind = "interrupt"
	// CmdListModels lists models.
	CmdListModels CommandKind = "listModels"
	// CmdListCollaborationModes lists collaboration modes.
	CmdListCollaborationModes CommandKind = "listCollaborationModes"
	// CmdSetCollaborationMode sets a thread's collaboration mode.
	CmdSetCollaborationMode CommandKind = "setCollaborationMode"
	// CmdSubmitUserInput answers a pending user-input request.
	CmdSubmitUserInput CommandKind = "submitUserInput"
	// CmdReadLiveState reads live conversation state.
	CmdReadLiveState CommandKind = "readLiveState"
	// CmdReadStreamEvents reads the raw event backlog.
	CmdReadStreamEvents CommandKind = "readStreamEvents"
	// CmdListProjectDirectories lists project directories.
	CmdListProjectDirectories CommandKind = "listProjectDirectories"
)

// AllCommandKinds lists every command kind.
var AllCommandKinds = []CommandKind{
	CmdListThreads,
	CmdCreateThread,
	CmdReadThread,
	CmdSendMessage,
	CmdInterrupt,
	CmdListModels,
	CmdListCollaborationModes,
	CmdSetCollaborationMode,
	CmdSubmitUserInput,
	CmdReadLiveState,
	CmdReadStreamEvents,
	CmdListProjectDirectories,
}

// CommandFeature maps each command kind to its feature id. The reverse map
// and the exhaustiveness tests enforce the bijection.
var CommandFeature = map[CommandKind]FeatureID{
	CmdListThreads:            FeatureListThreads,
	CmdCreateThread:           FeatureCreateThread,
	CmdReadThread:             FeatureReadThread,
	CmdSendMessage:            FeatureSendMessage,
	CmdInterrupt:              FeatureInterrupt,
	CmdListModels:             FeatureListModels,
	CmdListCollaborationModes: FeatureListCollaborationModes,
	CmdSetCollaborationMode:   FeatureSetCollaborationMode,
	CmdSubmitUserInput:        FeatureSubmitUserInput,
	CmdReadLiveState:          FeatureReadLiveState,
	CmdReadStreamEvents:       FeatureReadStreamEvents,
	CmdListProjectDirectories: FeatureListProjectDirectories,
}

// FeatureCommandKind returns the command kind for a feature id.
func FeatureCommandKind(feature FeatureID) (CommandKind, bool) {
	for kind, f := range CommandFeature {
		if f == feature {
			return kind, true
		}
	}
	return "", false
}

// CommandPayload is the sealed payload union; exactly one concrete type
// exists per command kind.
type CommandPayload interface {
	commandKind() CommandKind
}

// Command is a typed request into the unified surface, always scoped to one
// provider. On the wire the payload fields are inlined next to kind and
// provider.
type Command struct {
	Kind     CommandKind
	Provider ProviderID
	Payload  CommandPayload
}

// NewCommand pairs a payload with its target provider.
func NewCommand(provider ProviderID, payload CommandPayload) Command {
	return Command{Kind: payload.commandKind(), Provider: provider, Payload: payload}
}

// ListThreadsCommand lists threads, paged and filterable.
type ListThreadsCommand struct {
	Limit    int    `json:"limit,omitempty"`
	Archived bool   `json:"archived,omitempty"`
	All      bool   `json:"all,omitempty"`
	MaxPages int    `json:"maxPages,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

// CreateThreadCommand starts a new thread. Ephemeral defaults to false and
// is always forwarded explicitly: backend persistence depends on the boolean
// being present, not absent.
type CreateThreadCommand struct {
	Cwd            string  `json:"cwd,omitempty"`
	Model          ModelID `json:"model,omitempty"`
	ModelProvider  string  `json:"modelProvider,omitempty"`
	Personality    string  `json:"personality,omitempty"`
	Sandbox        string  `json:"sandbox,omitempty"`
	ApprovalPolicy string  `json:"approvalPolicy,omitempty"`
	Ephemeral      bool    `json:"ephemeral,omitempty"`
}

// ReadThreadCommand reads one thread. When IncludeTurns is false the backend
// may omit turns, but thread metadata must still be complete.
type ReadThreadCommand struct {
	ThreadID     ThreadID `json:"threadId"`
	IncludeTurns bool     `json:"includeTurns,omitempty"`
}

// SendMessageCommand sends a user message, optionally steering an
// in-progress turn.
type SendMessageCommand struct {
	ThreadID      ThreadID `json:"threadId"`
	Text          string   `json:"text"`
	OwnerClientID ClientID `json:"ownerClientId,omitempty"`
	Cwd           string   `json:"cwd,omitempty"`
	Steering      bool     `json:"steering,omitempty"`
}

// InterruptCommand delivers advisory cancellation.
type InterruptCommand struct {
	ThreadID      ThreadID `json:"threadId"`
	OwnerClientID ClientID `json:"ownerClientId,omitempty"`
}

// ListModelsCommand lists the provider's models.
type ListModelsCommand struct {
	Limit int `json:"limit,omitempty"`
}

// ListCollaborationModesCommand lists available collaboration modes.
type ListCollaborationModesCommand struct{}

// SetCollaborationModeCommand changes a thread's collaboration mode.
type SetCollaborationModeCommand struct {
	ThreadID      ThreadID `json:"threadId"`
	Mode          string   `json:"mode"`
	OwnerClientID ClientID `json:"ownerClientId,omitempty"`
}

// SubmitUserInputCommand answers a pending user-input request. The response
// shape must match the originating request's method.
type SubmitUserInputCommand struct {
	ThreadID  ThreadID        `json:"threadId"`
	RequestID RequestID       `json:"requestId"`
	Response  UserInputAnswer `json:"response"`
}

// ReadLiveStateCommand reads a thread's in-memory conversation state.
type ReadLiveStateCommand struct {
	ThreadID ThreadID `json:"threadId"`
}

// ReadStreamEventsCommand reads the raw event backlog for a thread.
type ReadStreamEventsCommand struct {
	ThreadID ThreadID `json:"threadId"`
}

// ListProjectDirectoriesCommand lists known project directories.
type ListProjectDirectoriesCommand struct{}

func (ListThreadsCommand) commandKind() CommandKind            { return CmdListThreads }
func (CreateThreadCommand) commandKind() CommandKind           { return CmdCreateThread }
func (ReadThreadCommand) commandKind() CommandKind             { return CmdReadThread }
func (SendMessageCommand) commandKind() CommandKind            { return CmdSendMessage }
func (InterruptCommand) commandKind() CommandKind              { return CmdInterrupt }
func (ListModelsCommand) commandKind() CommandKind             { return CmdListModels }
func (ListCollaborationModesCommand) commandKind() CommandKind { return CmdListCollaborationModes }
func (SetCollaborationModeCommand) commandKind() CommandKind   { return CmdSetCollaborationMode }
func (SubmitUserInputCommand) commandKind() CommandKind        { return CmdSubmitUserInput }
func (ReadLiveStateCommand) commandKind() CommandKind          { return CmdReadLiveState }
func (ReadStreamEventsCommand) commandKind() CommandKind       { return CmdReadStreamEvents }
func (ListProjectDirectoriesCommand) commandKind() CommandKind { return CmdListProjectDirectories }

// commandDecoders is the per-kind payload coverage map.
var commandDecoders = map[CommandKind]func() CommandPayload{
	CmdListThreads:            func() CommandPayload { return &ListThreadsCommand{} },
	CmdCreateThread:           func() CommandPayload { return &CreateThreadCommand{} },
	CmdReadThread:             func() CommandPayload { return &ReadThreadCommand{} },
	CmdSendMessage:            func() CommandPayload { return &SendMessageCommand{} },
	CmdInterrupt:              func() CommandPayload { return &InterruptCommand{} },
	CmdListModels:             func() CommandPayload { return &ListModelsCommand{} },
	CmdListCollaborationModes: func() CommandPayload { return &ListCollaborationModesCommand{} },
	CmdSetCollaborationMode:   func() CommandPayload { return &SetCollaborationModeCommand{} },
	CmdSubmitUserInput:        func() CommandPayload { return &SubmitUserInputCommand{} },
	CmdReadLiveState:          func() CommandPayload { return &ReadLiveStateCommand{} },
	CmdReadStreamEvents:       func() CommandPayload { return &ReadStreamEventsCommand{} },
	CmdListProjectDirectories: func() CommandPayload { return &ListProjectDirectoriesCommand{} },
}

// MarshalJSON inlines the payload fields next to kind and provider.
func (c Command) MarshalJSON() ([]byte, error) {
	return marshalEnvelope(c.Payload, map[string]any{
		"kind":     c.Kind,
		"provider": c.Provider,
	})
}

// UnmarshalJSON decodes the payload by its kind discriminator.
func (c *Command) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind     CommandKind `json:"kind"`
		Provider ProviderID  `json:"provider"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	decoder, ok := commandDecoders[head.Kind]
	if !ok {
		return fmt.Errorf("unknown command kind %q", head.Kind)
	}
	payload := decoder()
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	c.Kind = head.Kind
	c.Provider = head.Provider
	c.Payload = payload
	return nil
}

// Validate checks envelope-level invariants common to all commands.
func (c Command) Validate() error {
	if c.Kind == "" {
		return &ValidationError{Context: "command", Path: "kind", Message: "kind is required"}
	}
	if _, ok := CommandFeature[c.Kind]; !ok {
		return &ValidationError{Context: "command", Path: "kind", Message: fmt.Sprintf("unknown command kind %q", c.Kind)}
	}
	if !c.Provider.Valid() {
		return &ValidationError{Context: "command", Path: "provider", Message: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.Payload == nil {
		return &ValidationError{Context: "command", Path: "", Message: "payload is required"}
	}
	switch payload := c.Payload.(type) {
	case *SendMessageCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
		if strings.TrimSpace(payload.Text) == "" {
			return &ValidationError{Context: "command", Path: "text", Message: "text is required"}
		}
	case *ReadThreadCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
	case *InterruptCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
	case *SetCollaborationModeCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
		if payload.Mode == "" {
			return &ValidationError{Context: "command", Path: "mode", Message: "mode is required"}
		}
	case *SubmitUserInputCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
		if payload.RequestID.IsZero() {
			return &ValidationError{Context: "command", Path: "requestId", Message: "requestId is required"}
		}
	case *ReadLiveStateCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
	case *ReadStreamEventsCommand:
		if payload.ThreadID == "" {
			return &ValidationError{Context: "command", Path: "threadId", Message: "threadId is required"}
		}
	}
	return nil
}
