// Package codex speaks the codex app-server protocol over a local
// socket and translates its conversations into the unified thread
// model. The wire format is JSON-RPC 2.0 framed as JSON lines; the
// server also initiates requests of its own for approvals and other
// user input, which this package tracks as pending requests.
package codex

import (
	"encoding/json"
)

// Client-initiated methods.
const (
	methodListConversations       = "listConversations"
	methodNewConversation         = "newConversation"
	methodGetConversation         = "getConversation"
	methodSendUserMessage         = "sendUserMessage"
	methodSendUserSteeringMessage = "sendUserSteeringMessage"
	methodInterruptConversation   = "interruptConversation"
	methodListModels              = "listModels"
	methodListCollaborationModes  = "listCollaborationModes"
	methodSetCollaborationMode    = "setCollaborationMode"
	methodGetLiveState            = "getLiveState"
	methodGetStreamEvents         = "getStreamEvents"
	methodListProjects            = "listProjects"
)

// Server-initiated notification methods.
const (
	notifyConversationUpdated = "conversationUpdated"
	notifyUserInputResolved   = "userInputResolved"
)

// Server-initiated request methods. These carry an integer JSON-RPC id
// the client must echo when responding.
const (
	requestExecCommandApproval = "execCommandApproval"
	requestApplyPatchApproval  = "applyPatchApproval"
	requestUserInput           = "requestUserInput"
	requestReviewDecision      = "reviewDecision"
)

type listConversationsParams struct {
	PageSize int    `json:"pageSize,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
	Archived bool   `json:"archived,omitempty"`
}

type listConversationsResult struct {
	Items      []conversationSummary `json:"items"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

type conversationSummary struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title,omitempty"`
	Preview        string `json:"preview,omitempty"`
	CreatedAt      int64  `json:"createdAt,omitempty"`
	UpdatedAt      int64  `json:"updatedAt,omitempty"`
	Archived       bool   `json:"archived,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
	Source         string `json:"source,omitempty"`
}

type newConversationParams struct {
	Cwd            string `json:"cwd,omitempty"`
	Model          string `json:"model,omitempty"`
	ModelProvider  string `json:"modelProvider,omitempty"`
	Personality    string `json:"personality,omitempty"`
	Sandbox        string `json:"sandbox,omitempty"`
	ApprovalPolicy string `json:"approvalPolicy,omitempty"`
	// Always serialized; the backend keys persistence off the field
	// being present and false, not off its absence.
	Ephemeral bool `json:"ephemeral"`
}

type newConversationResult struct {
	ConversationID string `json:"conversationId"`
}

type getConversationParams struct {
	ConversationID string `json:"conversationId"`
	IncludeHistory bool   `json:"includeHistory"`
}

type conversation struct {
	ConversationID          string           `json:"conversationId"`
	Title                   string           `json:"title,omitempty"`
	CreatedAt               int64            `json:"createdAt,omitempty"`
	UpdatedAt               int64            `json:"updatedAt,omitempty"`
	LatestModel             string           `json:"latestModel,omitempty"`
	LatestReasoningEffort   string           `json:"latestReasoningEffort,omitempty"`
	LatestCollaborationMode string           `json:"latestCollaborationMode,omitempty"`
	Cwd                     string           `json:"cwd,omitempty"`
	Source                  string           `json:"source,omitempty"`
	Turns                   []turn           `json:"turns,omitempty"`
	PendingRequests         []pendingRequest `json:"pendingRequests,omitempty"`
}

type turn struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	StartedAt int64      `json:"startedAt,omitempty"`
	Error     *turnError `json:"error,omitempty"`
	Diff      string     `json:"diff,omitempty"`
	Items     []item     `json:"items,omitempty"`
}

type turnError struct {
	Message string `json:"message"`
}

// item is the native item envelope. Type discriminates; the remaining
// fields are populated per type and left zero otherwise.
type item struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Text             string          `json:"text,omitempty"`
	Images           []string        `json:"images,omitempty"`
	Message          string          `json:"message,omitempty"`
	Command          string          `json:"command,omitempty"`
	AggregatedOutput string          `json:"aggregatedOutput,omitempty"`
	ExitCode         *int            `json:"exitCode,omitempty"`
	Status           string          `json:"status,omitempty"`
	Changes          []fileChange    `json:"changes,omitempty"`
	Query            string          `json:"query,omitempty"`
	Items            []todoEntry     `json:"items,omitempty"`
	Plan             string          `json:"plan,omitempty"`
	Server           string          `json:"server,omitempty"`
	Tool             string          `json:"tool,omitempty"`
	Agent            string          `json:"agent,omitempty"`
	Arguments        json.RawMessage `json:"arguments,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Path             string          `json:"path,omitempty"`
	Summary          string          `json:"summary,omitempty"`
	Prompt           string          `json:"prompt,omitempty"`
	Output           string          `json:"output,omitempty"`
	Model            string          `json:"model,omitempty"`
	ReasoningEffort  string          `json:"reasoningEffort,omitempty"`
	RequestID        json.RawMessage `json:"requestId,omitempty"`
}

type fileChange struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type todoEntry struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type pendingRequest struct {
	ID        int64      `json:"id"`
	Method    string     `json:"method"`
	Questions []question `json:"questions,omitempty"`
}

type question struct {
	ID       string   `json:"id"`
	Header   string   `json:"header,omitempty"`
	Question string   `json:"question"`
	Options  []option `json:"options,omitempty"`
	Secret   bool     `json:"secret,omitempty"`
}

type option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type sendUserMessageParams struct {
	ConversationID string        `json:"conversationId"`
	Items          []messageItem `json:"items"`
	Cwd            string        `json:"cwd,omitempty"`
	OwnerClientID  string        `json:"ownerClientId,omitempty"`
}

type messageItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interruptParams struct {
	ConversationID string `json:"conversationId"`
	OwnerClientID  string `json:"ownerClientId,omitempty"`
}

type listModelsResult struct {
	Models []model `json:"models"`
}

type model struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName,omitempty"`
	Description       string   `json:"description,omitempty"`
	ReasoningEfforts  []string `json:"reasoningEfforts,omitempty"`
	DefaultEffort     string   `json:"defaultEffort,omitempty"`
	SupportsReasoning bool     `json:"supportsReasoning,omitempty"`
}

type listModesResult struct {
	Modes []collaborationMode `json:"modes"`
}

type collaborationMode struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

type setModeParams struct {
	ConversationID string `json:"conversationId"`
	Mode           string `json:"mode"`
}

type setModeResult struct {
	OwnerClientID string `json:"ownerClientId,omitempty"`
}

type liveStateParams struct {
	ConversationID string `json:"conversationId"`
}

type liveStateResult struct {
	OwnerClientID     string          `json:"ownerClientId,omitempty"`
	ConversationState json.RawMessage `json:"conversationState,omitempty"`
	Error             *liveStateError `json:"error,omitempty"`
}

type liveStateError struct {
	Message    string `json:"message"`
	EventIndex int    `json:"eventIndex,omitempty"`
	PatchIndex int    `json:"patchIndex,omitempty"`
}

type streamEventsParams struct {
	ConversationID string `json:"conversationId"`
}

type streamEventsResult struct {
	OwnerClientID string            `json:"ownerClientId,omitempty"`
	Events        []json.RawMessage `json:"events,omitempty"`
}

type listProjectsResult struct {
	Directories []string `json:"directories"`
}

type conversationUpdatedParams struct {
	ConversationID string `json:"conversationId"`
}

type userInputResolvedParams struct {
	ConversationID string          `json:"conversationId"`
	RequestID      json.RawMessage `json:"requestId"`
}

// serverRequestParams is the shared shape of server-initiated requests.
// Approval requests carry command or patch context; requestUserInput
// carries questions.
type serverRequestParams struct {
	ConversationID string     `json:"conversationId"`
	Questions      []question `json:"questions,omitempty"`
	Command        string     `json:"command,omitempty"`
	Cwd            string     `json:"cwd,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Prompt         string     `json:"prompt,omitempty"`
}

type answersResponse struct {
	Answers map[string]string `json:"answers"`
}

type decisionResponse struct {
	Decision string `json:"decision"`
}

type reviewResponse struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}
