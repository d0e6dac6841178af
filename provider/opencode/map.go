package opencode

import (
	"encoding/json"
	"fmt"
	"strings"

	"pkt.systems/agentdeck/schema"
)

func mapSummary(s Session) schema.ThreadSummary {
	return schema.ThreadSummary{
		ID:        schema.ThreadID(s.ID),
		Provider:  schema.ProviderOpencode,
		Title:     s.Title,
		CreatedAt: schema.NormalizeUnixSeconds(s.Time.Created),
		UpdatedAt: schema.NormalizeUnixSeconds(s.Time.Updated),
		Cwd:       s.Directory,
		Source:    "opencode",
	}
}

func mapSession(s Session) schema.Thread {
	return schema.Thread{
		ID:        schema.ThreadID(s.ID),
		Provider:  schema.ProviderOpencode,
		Title:     s.Title,
		CreatedAt: schema.NormalizeUnixSeconds(s.Time.Created),
		UpdatedAt: schema.NormalizeUnixSeconds(s.Time.Updated),
		Cwd:       s.Directory,
		Source:    "opencode",
	}
}

// mapTurns groups a session's message log into turns. Each user message
// opens a turn; the assistant messages that follow belong to it. A turn
// is in progress while its last assistant message has no completion
// time, and failed when the assistant reported an error.
func mapTurns(messages []MessageWithParts) []schema.Turn {
	var turns []schema.Turn
	var current *schema.Turn
	var model string

	flush := func() {
		if current != nil {
			turns = append(turns, *current)
			current = nil
		}
	}

	for _, msg := range messages {
		switch msg.Info.Role {
		case "user":
			flush()
			current = &schema.Turn{
				ID:        schema.TurnID(msg.Info.ID),
				Status:    schema.TurnInProgress,
				StartedAt: schema.NormalizeUnixSeconds(msg.Info.Time.Created),
				Items:     []schema.Item{},
			}
			text := collectText(msg.Parts)
			current.Items = append(current.Items, schema.NewItem(
				schema.ItemID(msg.Info.ID), &schema.UserMessageItem{Text: text}))
		case "assistant":
			if current == nil {
				// Assistant output with no preceding user message still
				// gets a turn so nothing is dropped.
				current = &schema.Turn{
					ID:        schema.TurnID(msg.Info.ID),
					Status:    schema.TurnInProgress,
					StartedAt: schema.NormalizeUnixSeconds(msg.Info.Time.Created),
					Items:     []schema.Item{},
				}
			}
			if msg.Info.ModelID != "" {
				if model != "" && msg.Info.ModelID != model {
					current.Items = append(current.Items, schema.NewItem(
						schema.ItemID(msg.Info.ID+"-model"),
						&schema.ModelChangeItem{Model: schema.ModelID(msg.Info.ModelID)}))
				}
				model = msg.Info.ModelID
			}
			for _, part := range msg.Parts {
				if item, ok := mapPart(part); ok {
					current.Items = append(current.Items, item)
				}
			}
			switch {
			case msg.Info.Error != nil:
				current.Status = schema.TurnFailed
				current.Error = &schema.TurnError{Message: msg.Info.Error.Message}
			case msg.Info.Time.Completed == 0:
				current.Status = schema.TurnInProgress
			default:
				current.Status = schema.TurnCompleted
			}
		}
	}
	flush()
	return turns
}

func collectText(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// mapPart converts one assistant part. Structural parts (step markers,
// snapshots) have no conversational content and are skipped; anything
// unrecognized surfaces as an error item.
func mapPart(p Part) (schema.Item, bool) {
	id := schema.ItemID(p.ID)
	switch p.Type {
	case "text":
		return schema.NewItem(id, &schema.AgentMessageItem{Text: p.Text}), true
	case "reasoning":
		return schema.NewItem(id, &schema.ReasoningItem{Text: p.Text}), true
	case "tool":
		return mapToolPart(p), true
	case "patch":
		return schema.NewItem(id, &schema.FileChangeItem{
			Changes: []schema.FileUpdateChange{},
			Status:  schema.StatusCompleted,
		}), true
	case "step-start", "step-finish", "snapshot", "file":
		return schema.Item{}, false
	default:
		return schema.NewItem(id, &schema.ErrorItem{
			Message: fmt.Sprintf("unrecognized opencode part type %q", p.Type),
		}), true
	}
}

type bashInput struct {
	Command string `json:"command"`
}

type fileInput struct {
	FilePath string `json:"filePath"`
}

type webInput struct {
	URL   string `json:"url,omitempty"`
	Query string `json:"query,omitempty"`
}

type todoInput struct {
	Todos []struct {
		Content string `json:"content"`
		Status  string `json:"status"`
	} `json:"todos"`
}

func mapToolPart(p Part) schema.Item {
	id := schema.ItemID(p.ID)
	status := schema.StatusCompleted
	var input json.RawMessage
	var output string
	if p.State != nil {
		input = p.State.Input
		output = p.State.Output
		switch p.State.Status {
		case "pending", "running":
			status = schema.StatusInProgress
		case "error":
			status = schema.StatusFailed
		}
	}

	switch p.Tool {
	case "bash":
		var in bashInput
		if len(input) > 0 {
			json.Unmarshal(input, &in)
		}
		return schema.NewItem(id, &schema.CommandExecutionItem{
			Command:          in.Command,
			AggregatedOutput: output,
			Status:           status,
		})
	case "edit", "write":
		var in fileInput
		if len(input) > 0 {
			json.Unmarshal(input, &in)
		}
		kind := "update"
		if p.Tool == "write" {
			kind = "add"
		}
		changes := []schema.FileUpdateChange{}
		if in.FilePath != "" {
			changes = append(changes, schema.FileUpdateChange{Path: in.FilePath, Kind: kind})
		}
		return schema.NewItem(id, &schema.FileChangeItem{Changes: changes, Status: status})
	case "webfetch", "websearch":
		var in webInput
		if len(input) > 0 {
			json.Unmarshal(input, &in)
		}
		query := in.Query
		if query == "" {
			query = in.URL
		}
		return schema.NewItem(id, &schema.WebSearchItem{Query: query})
	case "todowrite", "todoread":
		var in todoInput
		if len(input) > 0 {
			json.Unmarshal(input, &in)
		}
		entries := make([]schema.TodoEntry, 0, len(in.Todos))
		for _, todo := range in.Todos {
			entries = append(entries, schema.TodoEntry{
				Text:      todo.Content,
				Completed: todo.Status == "completed",
			})
		}
		return schema.NewItem(id, &schema.TodoListItem{Items: entries})
	default:
		var result json.RawMessage
		if output != "" {
			if encoded, err := json.Marshal(output); err == nil {
				result = encoded
			}
		}
		return schema.NewItem(id, &schema.McpToolCallItem{
			Server:    "opencode",
			Tool:      p.Tool,
			Status:    status,
			Arguments: input,
			Result:    result,
		})
	}
}

// mapPermission converts a pending permission into a user input
// request. File-mutating permission types become patch approvals;
// everything else is a command approval.
func mapPermission(p Permission) schema.UserInputRequest {
	method := schema.MethodCommandApproval
	switch p.Type {
	case "edit", "write", "patch":
		method = schema.MethodFileChangeApproval
	}
	req := schema.UserInputRequest{
		ID:     schema.StringRequestID(p.ID),
		Method: method,
	}
	if p.Title != "" {
		req.Questions = []schema.UserInputQuestion{{ID: p.ID, Question: p.Title}}
	}
	return req
}

// mapDecision translates a unified approval decision into the
// three-valued response the server accepts. Abort degrades to a plain
// rejection; the caller interrupts the turn separately.
func mapDecision(d schema.ApprovalDecision) string {
	switch d {
	case schema.DecisionApproved:
		return permissionOnce
	case schema.DecisionApprovedForSession:
		return permissionAlways
	default:
		return permissionReject
	}
}
