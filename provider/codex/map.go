package codex

import (
	"encoding/json"
	"fmt"

	"pkt.systems/agentdeck/schema"
)

// Native item type discriminators.
const (
	itemUserMessage         = "user_message"
	itemSteeringUserMessage = "steering_user_message"
	itemAgentMessage        = "agent_message"
	itemError               = "error"
	itemReasoning           = "reasoning"
	itemPlan                = "plan"
	itemTodoList            = "todo_list"
	itemPlanImplementation  = "plan_implementation"
	itemUserInputResponse   = "user_input_response"
	itemCommandExecution    = "command_execution"
	itemFileChange          = "file_change"
	itemContextCompaction   = "context_compaction"
	itemWebSearch           = "web_search"
	itemMcpToolCall         = "mcp_tool_call"
	itemCollabAgentToolCall = "collab_agent_tool_call"
	itemImageView           = "image_view"
	itemEnteredReviewMode   = "entered_review_mode"
	itemExitedReviewMode    = "exited_review_mode"
	itemModelChange         = "model_change"
)

func mapThread(c conversation) schema.Thread {
	thread := schema.Thread{
		ID:                      schema.ThreadID(c.ConversationID),
		Provider:                schema.ProviderCodex,
		Title:                   c.Title,
		CreatedAt:               schema.NormalizeUnixSeconds(c.CreatedAt),
		UpdatedAt:               schema.NormalizeUnixSeconds(c.UpdatedAt),
		LatestModel:             schema.ModelID(c.LatestModel),
		LatestReasoningEffort:   c.LatestReasoningEffort,
		LatestCollaborationMode: c.LatestCollaborationMode,
		Cwd:                     c.Cwd,
		Source:                  c.Source,
	}
	for _, t := range c.Turns {
		thread.Turns = append(thread.Turns, mapTurn(t))
	}
	for _, p := range c.PendingRequests {
		thread.PendingRequests = append(thread.PendingRequests, mapPendingRequest(p))
	}
	return thread
}

func mapTurn(t turn) schema.Turn {
	mapped := schema.Turn{
		ID:        schema.TurnID(t.ID),
		Status:    schema.TurnStatus(t.Status),
		StartedAt: schema.NormalizeUnixSeconds(t.StartedAt),
		Diff:      t.Diff,
		Items:     make([]schema.Item, 0, len(t.Items)),
	}
	if t.Error != nil {
		mapped.Error = &schema.TurnError{Message: t.Error.Message}
	}
	for _, i := range t.Items {
		mapped.Items = append(mapped.Items, mapItem(i))
	}
	return mapped
}

// mapItem converts one native item. Unknown native types surface as
// error items rather than being dropped, so nothing the backend sends
// disappears silently.
func mapItem(i item) schema.Item {
	id := schema.ItemID(i.ID)
	switch i.Type {
	case itemUserMessage:
		return schema.NewItem(id, &schema.UserMessageItem{Text: i.Text, Images: i.Images})
	case itemSteeringUserMessage:
		return schema.NewItem(id, &schema.SteeringUserMessageItem{Text: i.Text})
	case itemAgentMessage:
		return schema.NewItem(id, &schema.AgentMessageItem{Text: i.Text})
	case itemError:
		return schema.NewItem(id, &schema.ErrorItem{Message: i.Message})
	case itemReasoning:
		return schema.NewItem(id, &schema.ReasoningItem{Text: i.Text})
	case itemPlan:
		return schema.NewItem(id, &schema.PlanItem{Text: i.Text})
	case itemTodoList:
		entries := make([]schema.TodoEntry, 0, len(i.Items))
		for _, e := range i.Items {
			entries = append(entries, schema.TodoEntry{Text: e.Text, Completed: e.Completed})
		}
		return schema.NewItem(id, &schema.TodoListItem{Items: entries})
	case itemPlanImplementation:
		return schema.NewItem(id, &schema.PlanImplementationItem{Plan: i.Plan})
	case itemUserInputResponse:
		payload := &schema.UserInputResponseItem{Text: i.Text}
		if len(i.RequestID) > 0 {
			// Malformed ids degrade to the zero id; the text answer is
			// still worth keeping.
			_ = json.Unmarshal(i.RequestID, &payload.RequestID)
		}
		return schema.NewItem(id, payload)
	case itemCommandExecution:
		return schema.NewItem(id, &schema.CommandExecutionItem{
			Command:          i.Command,
			AggregatedOutput: i.AggregatedOutput,
			ExitCode:         i.ExitCode,
			Status:           mapItemStatus(i.Status),
		})
	case itemFileChange:
		changes := make([]schema.FileUpdateChange, 0, len(i.Changes))
		for _, c := range i.Changes {
			changes = append(changes, schema.FileUpdateChange{Path: c.Path, Kind: c.Kind})
		}
		return schema.NewItem(id, &schema.FileChangeItem{Changes: changes, Status: mapItemStatus(i.Status)})
	case itemContextCompaction:
		return schema.NewItem(id, &schema.ContextCompactionItem{Summary: i.Summary})
	case itemWebSearch:
		return schema.NewItem(id, &schema.WebSearchItem{Query: i.Query})
	case itemMcpToolCall:
		return schema.NewItem(id, &schema.McpToolCallItem{
			Server:    i.Server,
			Tool:      i.Tool,
			Status:    mapItemStatus(i.Status),
			Arguments: i.Arguments,
			Result:    i.Result,
		})
	case itemCollabAgentToolCall:
		return schema.NewItem(id, &schema.CollabAgentToolCallItem{
			Agent:     i.Agent,
			Tool:      i.Tool,
			Status:    mapItemStatus(i.Status),
			Arguments: i.Arguments,
			Result:    i.Result,
		})
	case itemImageView:
		return schema.NewItem(id, &schema.ImageViewItem{Path: i.Path})
	case itemEnteredReviewMode:
		return schema.NewItem(id, &schema.EnteredReviewModeItem{Prompt: i.Prompt})
	case itemExitedReviewMode:
		return schema.NewItem(id, &schema.ExitedReviewModeItem{Output: i.Output})
	case itemModelChange:
		return schema.NewItem(id, &schema.ModelChangeItem{
			Model:           schema.ModelID(i.Model),
			ReasoningEffort: i.ReasoningEffort,
		})
	default:
		return schema.NewItem(id, &schema.ErrorItem{
			Message: fmt.Sprintf("unrecognized codex item type %q", i.Type),
		})
	}
}

func mapItemStatus(s string) schema.ItemStatus {
	switch s {
	case "in_progress", "inProgress", "in-progress":
		return schema.StatusInProgress
	case "failed":
		return schema.StatusFailed
	default:
		return schema.StatusCompleted
	}
}

func mapPendingRequest(p pendingRequest) schema.UserInputRequest {
	return schema.UserInputRequest{
		ID:        schema.NumericRequestID(p.ID),
		Method:    p.Method,
		Questions: mapQuestions(p.Questions),
	}
}

func mapQuestions(qs []question) []schema.UserInputQuestion {
	if len(qs) == 0 {
		return nil
	}
	mapped := make([]schema.UserInputQuestion, 0, len(qs))
	for _, q := range qs {
		opts := make([]schema.UserInputOption, 0, len(q.Options))
		for _, o := range q.Options {
			opts = append(opts, schema.UserInputOption{Label: o.Label, Value: o.Value})
		}
		mapped = append(mapped, schema.UserInputQuestion{
			ID:       q.ID,
			Header:   q.Header,
			Question: q.Question,
			Options:  opts,
			Secret:   q.Secret,
		})
	}
	return mapped
}

func mapSummary(s conversationSummary) schema.ThreadSummary {
	return schema.ThreadSummary{
		ID:        schema.ThreadID(s.ConversationID),
		Provider:  schema.ProviderCodex,
		Title:     s.Title,
		Preview:   s.Preview,
		CreatedAt: schema.NormalizeUnixSeconds(s.CreatedAt),
		UpdatedAt: schema.NormalizeUnixSeconds(s.UpdatedAt),
		Archived:  s.Archived,
		Cwd:       s.Cwd,
		Source:    s.Source,
	}
}

func mapModel(m model) schema.Model {
	return schema.Model{
		ID:                schema.ModelID(m.ID),
		DisplayName:       m.DisplayName,
		Description:       m.Description,
		ReasoningEfforts:  m.ReasoningEfforts,
		DefaultEffort:     m.DefaultEffort,
		SupportsReasoning: m.SupportsReasoning,
	}
}

func mapMode(m collaborationMode) schema.CollaborationMode {
	return schema.CollaborationMode{ID: m.ID, Label: m.Label, Description: m.Description}
}

func mapLiveState(threadID schema.ThreadID, r liveStateResult) schema.ReadLiveStateResult {
	mapped := schema.ReadLiveStateResult{
		ThreadID:          threadID,
		OwnerClientID:     schema.ClientID(r.OwnerClientID),
		ConversationState: r.ConversationState,
	}
	if len(mapped.ConversationState) == 0 {
		mapped.ConversationState = json.RawMessage("null")
	}
	if r.Error != nil {
		mapped.LiveStateError = &schema.LiveStateError{
			Message:    r.Error.Message,
			EventIndex: r.Error.EventIndex,
			PatchIndex: r.Error.PatchIndex,
		}
	}
	return mapped
}
