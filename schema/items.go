package schema

import (
	"encoding/json"
	"fmt"
)

// ItemKind discriminates the unified item union. The set is closed: every
// backend-native structure must map onto exactly one of these kinds, never
// pass through untyped.
type ItemKind string

const (
	// ItemUserMessage is a user message that started a turn.
	ItemUserMessage ItemKind = "userMessage"
	// ItemSteeringUserMessage is a user message injected into a running turn.
	ItemSteeringUserMessage ItemKind = "steeringUserMessage"
	// ItemAgentMessage is assistant output.
	ItemAgentMessage ItemKind = "agentMessage"
	// ItemError is a non-fatal error reported by the backend.
	ItemError ItemKind = "error"
	// ItemReasoning is intermediate reasoning content.
	ItemReasoning ItemKind = "reasoning"
	// ItemPlan is a proposed plan.
	ItemPlan ItemKind = "plan"
	// ItemTodoList is the agent's task checklist.
	ItemTodoList ItemKind = "todoList"
	// ItemPlanImplementation marks the agent implementing an accepted plan.
	ItemPlanImplementation ItemKind = "planImplementation"
	// ItemUserInputResponse records an answer to a user-input request.
	ItemUserInputResponse ItemKind = "userInputResponse"
	// ItemCommandExecution is a shell command run by the agent.
	ItemCommandExecution ItemKind = "commandExecution"
	// ItemFileChange is a patch applied by the agent.
	ItemFileChange ItemKind = "fileChange"
	// ItemContextCompaction marks a context window compaction.
	ItemContextCompaction ItemKind = "contextCompaction"
	// ItemWebSearch is a web search performed by the agent.
	ItemWebSearch ItemKind = "webSearch"
	// ItemMcpToolCall is an MCP tool invocation.
	ItemMcpToolCall ItemKind = "mcpToolCall"
	// ItemCollabAgentToolCall is a tool call delegated to a collaborating agent.
	ItemCollabAgentToolCall ItemKind = "collabAgentToolCall"
	// ItemImageView records the agent viewing an image.
	ItemImageView ItemKind = "imageView"
	// ItemEnteredReviewMode marks the thread entering review mode.
	ItemEnteredReviewMode ItemKind = "enteredReviewMode"
	// ItemExitedReviewMode marks the thread leaving review mode.
	ItemExitedReviewMode ItemKind = "exitedReviewMode"
	// ItemModelChange records a mid-thread model switch.
	ItemModelChange ItemKind = "modelChange"
)

// AllItemKinds lists every item kind. Adding a kind requires a payload type,
// a decoder entry, and renderer support; the coverage tests fail otherwise.
var AllItemKinds = []ItemKind{
	ItemUserMessage,
	ItemSteeringUserMessage,
	ItemAgentMessage,
	ItemError,
	ItemReasoning,
	ItemPlan,
	ItemTodoList,
	ItemPlanImplementation,
	ItemUserInputResponse,
	ItemCommandExecution,
	ItemFileChange,
	ItemContextCompaction,
	ItemWebSearch,
	ItemMcpToolCall,
	ItemCollabAgentToolCall,
	ItemImageView,
	ItemEnteredReviewMode,
	ItemExitedReviewMode,
	ItemModelChange,
}

// ItemStatus is the lifecycle stage of an in-turn activity item.
type ItemStatus string

const (
	// StatusInProgress marks a still-running item.
	StatusInProgress ItemStatus = "in_progress"
	// StatusCompleted marks a finished item.
	StatusCompleted ItemStatus = "completed"
	// StatusFailed marks a failed item.
	StatusFailed ItemStatus = "failed"
)

// ItemPayload is the sealed payload union; exactly one concrete type exists
// per item kind.
type ItemPayload interface {
	itemKind() ItemKind
}

// Item is one typed unit of conversation content or tool activity within a
// turn. On the wire the payload fields are inlined next to id and kind.
type Item struct {
	ID      ItemID
	Kind    ItemKind
	Payload ItemPayload
}

// NewItem pairs a payload with its id; the kind comes from the payload.
func NewItem(id ItemID, payload ItemPayload) Item {
	return Item{ID: id, Kind: payload.itemKind(), Payload: payload}
}

// UserMessageItem is a user message that started a turn.
type UserMessageItem struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// SteeringUserMessageItem is a user message injected into an in-progress turn.
type SteeringUserMessageItem struct {
	Text string `json:"text"`
}

// AgentMessageItem is assistant output.
type AgentMessageItem struct {
	Text string `json:"text"`
}

// ErrorItem is a non-fatal error emitted by the backend.
type ErrorItem struct {
	Message string `json:"message"`
}

// ReasoningItem carries intermediate reasoning content.
type ReasoningItem struct {
	Text string `json:"text"`
}

// PlanItem is a proposed plan awaiting user action.
type PlanItem struct {
	Text string `json:"text"`
}

// TodoEntry is one checklist entry in a todo list item.
type TodoEntry struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// TodoListItem is the agent's task checklist for a turn.
type TodoListItem struct {
	Items []TodoEntry `json:"items"`
}

// PlanImplementationItem marks the agent implementing a previously accepted
// plan.
type PlanImplementationItem struct {
	Plan string `json:"plan"`
}

// UserInputResponseItem records the answer given to a user-input request.
type UserInputResponseItem struct {
	RequestID RequestID `json:"requestId"`
	Text      string    `json:"text,omitempty"`
}

// CommandExecutionItem is a shell command run by the agent.
type CommandExecutionItem struct {
	Command          string     `json:"command"`
	AggregatedOutput string     `json:"aggregatedOutput,omitempty"`
	ExitCode         *int       `json:"exitCode,omitempty"`
	Status           ItemStatus `json:"status"`
}

// FileUpdateChange is one file touched by a patch.
type FileUpdateChange struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// FileChangeItem aggregates the file updates of one applied patch.
type FileChangeItem struct {
	Changes []FileUpdateChange `json:"changes"`
	Status  ItemStatus         `json:"status"`
}

// ContextCompactionItem marks a context window compaction.
type ContextCompactionItem struct {
	Summary string `json:"summary,omitempty"`
}

// WebSearchItem is a web search performed by the agent.
type WebSearchItem struct {
	Query string `json:"query"`
}

// McpToolCallItem is an MCP tool invocation. Arguments and result are
// backend-specific opaque JSON, embedded so they round-trip structurally.
type McpToolCallItem struct {
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Status    ItemStatus      `json:"status"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// CollabAgentToolCallItem is a tool call delegated to a collaborating agent.
type CollabAgentToolCallItem struct {
	Agent     string          `json:"agent"`
	Tool      string          `json:"tool,omitempty"`
	Status    ItemStatus      `json:"status"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ImageViewItem records the agent viewing an image.
type ImageViewItem struct {
	Path string `json:"path"`
}

// EnteredReviewModeItem marks the thread entering review mode.
type EnteredReviewModeItem struct {
	Prompt string `json:"prompt,omitempty"`
}

// ExitedReviewModeItem marks the thread leaving review mode.
type ExitedReviewModeItem struct {
	Output string `json:"output,omitempty"`
}

// ModelChangeItem records a mid-thread model switch.
type ModelChangeItem struct {
	Model           ModelID `json:"model"`
	ReasoningEffort string  `json:"reasoningEffort,omitempty"`
}

func (UserMessageItem) itemKind() ItemKind         { return ItemUserMessage }
func (SteeringUserMessageItem) itemKind() ItemKind { return ItemSteeringUserMessage }
func (AgentMessageItem) itemKind() ItemKind        { return ItemAgentMessage }
func (ErrorItem) itemKind() ItemKind               { return ItemError }
func (ReasoningItem) itemKind() ItemKind           { return ItemReasoning }
func (PlanItem) itemKind() ItemKind                { return ItemPlan }
func (TodoListItem) itemKind() ItemKind            { return ItemTodoList }
func (PlanImplementationItem) itemKind() ItemKind  { return ItemPlanImplementation }
func (UserInputResponseItem) itemKind() ItemKind   { return ItemUserInputResponse }
func (CommandExecutionItem) itemKind() ItemKind    { return ItemCommandExecution }
func (FileChangeItem) itemKind() ItemKind          { return ItemFileChange }
func (ContextCompactionItem) itemKind() ItemKind   { return ItemContextCompaction }
func (WebSearchItem) itemKind() ItemKind           { return ItemWebSearch }
func (McpToolCallItem) itemKind() ItemKind         { return ItemMcpToolCall }
func (CollabAgentToolCallItem) itemKind() ItemKind { return ItemCollabAgentToolCall }
func (ImageViewItem) itemKind() ItemKind           { return ItemImageView }
func (EnteredReviewModeItem) itemKind() ItemKind   { return ItemEnteredReviewMode }
func (ExitedReviewModeItem) itemKind() ItemKind    { return ItemExitedReviewMode }
func (ModelChangeItem) itemKind() ItemKind         { return ItemModelChange }

// itemDecoders is the per-kind payload coverage map. Omitting a kind here is
// caught by TestItemKindCoverage.
var itemDecoders = map[ItemKind]func() ItemPayload{
	ItemUserMessage:         func() ItemPayload { return &UserMessageItem{} },
	ItemSteeringUserMessage: func() ItemPayload { return &SteeringUserMessageItem{} },
	ItemAgentMessage:        func() ItemPayload { return &AgentMessageItem{} },
	ItemError:               func() ItemPayload { return &ErrorItem{} },
	ItemReasoning:           func() ItemPayload { return &ReasoningItem{} },
	ItemPlan:                func() ItemPayload { return &PlanItem{} },
	ItemTodoList:            func() ItemPayload { return &TodoListItem{} },
	ItemPlanImplementation:  func() ItemPayload { return &PlanImplementationItem{} },
	ItemUserInputResponse:   func() ItemPayload { return &UserInputResponseItem{} },
	ItemCommandExecution:    func() ItemPayload { return &CommandExecutionItem{} },
	ItemFileChange:          func() ItemPayload { return &FileChangeItem{} },
	ItemContextCompaction:   func() ItemPayload { return &ContextCompactionItem{} },
	ItemWebSearch:           func() ItemPayload { return &WebSearchItem{} },
	ItemMcpToolCall:         func() ItemPayload { return &McpToolCallItem{} },
	ItemCollabAgentToolCall: func() ItemPayload { return &CollabAgentToolCallItem{} },
	ItemImageView:           func() ItemPayload { return &ImageViewItem{} },
	ItemEnteredReviewMode:   func() ItemPayload { return &EnteredReviewModeItem{} },
	ItemExitedReviewMode:    func() ItemPayload { return &ExitedReviewModeItem{} },
	ItemModelChange:         func() ItemPayload { return &ModelChangeItem{} },
}

// MarshalJSON inlines the payload fields next to id and kind.
func (i Item) MarshalJSON() ([]byte, error) {
	head := map[string]any{"kind": i.Kind}
	if i.ID != "" {
		head["id"] = i.ID
	}
	return marshalEnvelope(i.Payload, head)
}

// UnmarshalJSON decodes the payload by its kind discriminator.
func (i *Item) UnmarshalJSON(data []byte) error {
	var head struct {
		ID   ItemID   `json:"id"`
		Kind ItemKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	decoder, ok := itemDecoders[head.Kind]
	if !ok {
		return fmt.Errorf("unknown item kind %q", head.Kind)
	}
	payload := decoder()
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	i.ID = head.ID
	i.Kind = head.Kind
	i.Payload = payload
	return nil
}

// Text returns the primary text of message-bearing items, empty otherwise.
func (i Item) Text() string {
	switch payload := i.Payload.(type) {
	case *UserMessageItem:
		return payload.Text
	case *SteeringUserMessageItem:
		return payload.Text
	case *AgentMessageItem:
		return payload.Text
	case *ReasoningItem:
		return payload.Text
	case *PlanItem:
		return payload.Text
	case *ErrorItem:
		return payload.Message
	default:
		return ""
	}
}
