package schema

// TurnStatus is a turn's lifecycle state. Providers are not normalized at the
// source: both "in-progress" and "inProgress" spellings occur on the wire, so
// consuming code must go through InProgress instead of comparing strings.
type TurnStatus string

const (
	// TurnNotStarted marks a turn that has not begun executing.
	TurnNotStarted TurnStatus = "not-started"
	// TurnInProgress marks a running turn.
	TurnInProgress TurnStatus = "in-progress"
	// TurnCompleted marks a successfully finished turn.
	TurnCompleted TurnStatus = "completed"
	// TurnFailed marks a failed turn.
	TurnFailed TurnStatus = "failed"
)

// InProgress reports whether the status is an in-progress spelling.
func (s TurnStatus) InProgress() bool {
	return s == TurnInProgress || s == "inProgress"
}

// TurnError is the terminal error payload of a failed turn.
type TurnError struct {
	Message string `json:"message"`
}

// Turn is one request/response cycle within a thread. Items are ordered;
// insertion order is chronological.
type Turn struct {
	ID        TurnID     `json:"id"`
	Status    TurnStatus `json:"status"`
	StartedAt int64      `json:"startedAt,omitempty"`
	Error     *TurnError `json:"error,omitempty"`
	Diff      string     `json:"diff,omitempty"`
	Items     []Item     `json:"items"`
}

// Thread is a persistent conversation with a provider. Every read produces a
// full replacement value; this layer never mutates a thread partially.
type Thread struct {
	ID              ThreadID           `json:"id"`
	Provider        ProviderID         `json:"provider"`
	Turns           []Turn             `json:"turns,omitempty"`
	PendingRequests []UserInputRequest `json:"pendingRequests,omitempty"`

	CreatedAt               int64   `json:"createdAt,omitempty"`
	UpdatedAt               int64   `json:"updatedAt,omitempty"`
	Title                   string  `json:"title,omitempty"`
	LatestModel             ModelID `json:"latestModel,omitempty"`
	LatestReasoningEffort   string  `json:"latestReasoningEffort,omitempty"`
	LatestCollaborationMode string  `json:"latestCollaborationMode,omitempty"`
	Cwd                     string  `json:"cwd,omitempty"`
	Source                  string  `json:"source,omitempty"`
}

// ThreadSummary is the listing shape of a thread.
type ThreadSummary struct {
	ID        ThreadID   `json:"id"`
	Provider  ProviderID `json:"provider"`
	Title     string     `json:"title,omitempty"`
	Preview   string     `json:"preview,omitempty"`
	CreatedAt int64      `json:"createdAt,omitempty"`
	UpdatedAt int64      `json:"updatedAt,omitempty"`
	Archived  bool       `json:"archived,omitempty"`
	Cwd       string     `json:"cwd,omitempty"`
	Source    string     `json:"source,omitempty"`
}

// ThreadPage is one page of thread summaries plus paging state.
type ThreadPage struct {
	Data       []ThreadSummary `json:"data"`
	NextCursor string          `json:"nextCursor,omitempty"`
	Pages      int             `json:"pages,omitempty"`
	Truncated  bool            `json:"truncated,omitempty"`
}

// Model describes one model a provider offers.
type Model struct {
	ID                ModelID  `json:"id"`
	DisplayName       string   `json:"displayName,omitempty"`
	Description       string   `json:"description,omitempty"`
	ReasoningEfforts  []string `json:"reasoningEfforts,omitempty"`
	DefaultEffort     string   `json:"defaultEffort,omitempty"`
	SupportsReasoning bool     `json:"supportsReasoning,omitempty"`
}

// CollaborationMode describes one collaboration mode a provider offers.
type CollaborationMode struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}
