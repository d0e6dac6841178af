package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

const (
	defaultPageSize = 25
	defaultMaxPages = 10
)

var support = schema.Support{
	schema.FeatureListThreads:            true,
	schema.FeatureCreateThread:           true,
	schema.FeatureReadThread:             true,
	schema.FeatureSendMessage:            true,
	schema.FeatureInterrupt:              true,
	schema.FeatureListModels:             true,
	schema.FeatureListCollaborationModes: true,
	schema.FeatureSetCollaborationMode:   true,
	schema.FeatureSubmitUserInput:        true,
	schema.FeatureReadLiveState:          true,
	schema.FeatureReadStreamEvents:       true,
	schema.FeatureListProjectDirectories: true,
}

// Support is the static feature table for the codex backend.
func Support() schema.Support {
	table := make(schema.Support, len(support))
	for k, v := range support {
		table[k] = v
	}
	return table
}

type pendingEntry struct {
	serverID int64
	request  schema.UserInputRequest
}

// Adapter implements provider.Adapter over a codex Transport.
type Adapter struct {
	transport Transport
	events    provider.Events
	log       pslog.Logger
	enabled   bool

	mu      sync.Mutex
	pending map[schema.ThreadID]map[string]pendingEntry
}

// New builds a codex adapter. Events may be nil.
func New(transport Transport, enabled bool, events provider.Events, log pslog.Logger) *Adapter {
	if events == nil {
		events = provider.NopEvents{}
	}
	return &Adapter{
		transport: transport,
		events:    events,
		log:       log,
		enabled:   enabled,
		pending:   make(map[schema.ThreadID]map[string]pendingEntry),
	}
}

// Run consumes server-initiated traffic until ctx is done. It must run
// exactly once per adapter; pending approvals are tracked here.
func (a *Adapter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.transport.Requests():
			a.handleServerMessage(ctx, req)
		}
	}
}

func (a *Adapter) handleServerMessage(_ context.Context, msg ServerRequest) {
	switch msg.Method {
	case notifyConversationUpdated:
		var params conversationUpdatedParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			a.log.Warn("codex notification decode failed", "method", msg.Method, "err", err)
			return
		}
		a.events.ThreadChanged(schema.ProviderCodex, schema.ThreadID(params.ConversationID))
	case notifyUserInputResolved:
		var params userInputResolvedParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			a.log.Warn("codex notification decode failed", "method", msg.Method, "err", err)
			return
		}
		var requestID schema.RequestID
		if err := json.Unmarshal(params.RequestID, &requestID); err != nil {
			a.log.Warn("codex resolved request id decode failed", "err", err)
			return
		}
		threadID := schema.ThreadID(params.ConversationID)
		a.removePending(threadID, requestID)
		a.events.UserInputResolved(schema.ProviderCodex, threadID, requestID)
	case requestExecCommandApproval, requestApplyPatchApproval, requestUserInput, requestReviewDecision:
		if msg.ID == nil {
			a.log.Warn("codex server request missing id", "method", msg.Method)
			return
		}
		var params serverRequestParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			a.log.Warn("codex server request decode failed", "method", msg.Method, "err", err)
			return
		}
		threadID := schema.ThreadID(params.ConversationID)
		req := schema.UserInputRequest{
			ID:        schema.NumericRequestID(*msg.ID),
			Method:    msg.Method,
			Questions: mapQuestions(params.Questions),
		}
		a.storePending(threadID, pendingEntry{serverID: *msg.ID, request: req})
		a.events.UserInputRequested(schema.ProviderCodex, threadID, req)
	default:
		a.log.Debug("codex server message ignored", "method", msg.Method)
	}
}

func (a *Adapter) storePending(threadID schema.ThreadID, entry pendingEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byID := a.pending[threadID]
	if byID == nil {
		byID = make(map[string]pendingEntry)
		a.pending[threadID] = byID
	}
	byID[entry.request.ID.String()] = entry
}

func (a *Adapter) removePending(threadID schema.ThreadID, requestID schema.RequestID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byID := a.pending[threadID]
	delete(byID, requestID.String())
	if len(byID) == 0 {
		delete(a.pending, threadID)
	}
}

func (a *Adapter) lookupPending(threadID schema.ThreadID, requestID schema.RequestID) (pendingEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.pending[threadID][requestID.String()]
	return entry, ok
}

// Provider implements provider.Adapter.
func (a *Adapter) Provider() schema.ProviderID { return schema.ProviderCodex }

// Support implements provider.Adapter.
func (a *Adapter) Support() schema.Support { return Support() }

// Enabled implements provider.Adapter.
func (a *Adapter) Enabled() bool { return a.enabled }

// Connected implements provider.Adapter.
func (a *Adapter) Connected() bool { return a.transport.Connected() }

// LastError implements provider.Adapter.
func (a *Adapter) LastError() string { return a.transport.LastError() }

// ListThreads implements provider.Adapter. The backend pages; this
// walks pages until the requested window is filled, every page is
// consumed, or the page cap is hit, in which case the result is marked
// truncated.
func (a *Adapter) ListThreads(ctx context.Context, req schema.ListThreadsCommand) (schema.ThreadPage, error) {
	pageSize := req.Limit
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	page := schema.ThreadPage{Data: []schema.ThreadSummary{}}
	cursor := req.Cursor
	for {
		var res listConversationsResult
		params := listConversationsParams{PageSize: pageSize, Cursor: cursor, Archived: req.Archived}
		if err := a.transport.Call(ctx, methodListConversations, params, &res); err != nil {
			return schema.ThreadPage{}, a.backendErr("listThreads", "", err)
		}
		page.Pages++
		for _, s := range res.Items {
			page.Data = append(page.Data, mapSummary(s))
		}
		cursor = res.NextCursor
		if cursor == "" {
			break
		}
		if !req.All && len(page.Data) >= pageSize {
			page.NextCursor = cursor
			break
		}
		if page.Pages >= maxPages {
			page.NextCursor = cursor
			page.Truncated = true
			break
		}
	}
	return page, nil
}

// CreateThread implements provider.Adapter. The backend returns only
// the new conversation id; callers read the thread back for metadata.
func (a *Adapter) CreateThread(ctx context.Context, req schema.CreateThreadCommand) (schema.ThreadID, error) {
	params := newConversationParams{
		Cwd:            req.Cwd,
		Model:          string(req.Model),
		ModelProvider:  req.ModelProvider,
		Personality:    req.Personality,
		Sandbox:        req.Sandbox,
		ApprovalPolicy: req.ApprovalPolicy,
		Ephemeral:      req.Ephemeral,
	}
	var res newConversationResult
	if err := a.transport.Call(ctx, methodNewConversation, params, &res); err != nil {
		return "", a.backendErr("createThread", "", err)
	}
	if res.ConversationID == "" {
		return "", a.backendErr("createThread", "", fmt.Errorf("backend returned empty conversation id"))
	}
	return schema.ThreadID(res.ConversationID), nil
}

// ReadThread implements provider.Adapter.
func (a *Adapter) ReadThread(ctx context.Context, req schema.ReadThreadCommand) (schema.Thread, error) {
	params := getConversationParams{
		ConversationID: string(req.ThreadID),
		IncludeHistory: req.IncludeTurns,
	}
	var res conversation
	if err := a.transport.Call(ctx, methodGetConversation, params, &res); err != nil {
		return schema.Thread{}, a.backendErr("readThread", req.ThreadID, err)
	}
	thread := mapThread(res)
	// Pending requests reported by the backend are registered so
	// answers submitted after a reconnect still find their server id.
	for _, p := range res.PendingRequests {
		a.storePending(thread.ID, pendingEntry{serverID: p.ID, request: mapPendingRequest(p)})
	}
	return thread, nil
}

// SendMessage implements provider.Adapter.
func (a *Adapter) SendMessage(ctx context.Context, req schema.SendMessageCommand) error {
	method := methodSendUserMessage
	if req.Steering {
		method = methodSendUserSteeringMessage
	}
	params := sendUserMessageParams{
		ConversationID: string(req.ThreadID),
		Items:          []messageItem{{Type: "text", Text: req.Text}},
		Cwd:            req.Cwd,
		OwnerClientID:  string(req.OwnerClientID),
	}
	if err := a.transport.Call(ctx, method, params, nil); err != nil {
		return a.backendErr("sendMessage", req.ThreadID, err)
	}
	return nil
}

// Interrupt implements provider.Adapter. Delivery is advisory: a nil
// return means the backend accepted the signal, not that the turn
// stopped.
func (a *Adapter) Interrupt(ctx context.Context, req schema.InterruptCommand) error {
	params := interruptParams{
		ConversationID: string(req.ThreadID),
		OwnerClientID:  string(req.OwnerClientID),
	}
	if err := a.transport.Call(ctx, methodInterruptConversation, params, nil); err != nil {
		return a.backendErr("interrupt", req.ThreadID, err)
	}
	return nil
}

// ListModels implements provider.Adapter.
func (a *Adapter) ListModels(ctx context.Context, req schema.ListModelsCommand) ([]schema.Model, error) {
	var res listModelsResult
	if err := a.transport.Call(ctx, methodListModels, struct{}{}, &res); err != nil {
		return nil, a.backendErr("listModels", "", err)
	}
	models := make([]schema.Model, 0, len(res.Models))
	for _, m := range res.Models {
		models = append(models, mapModel(m))
	}
	if req.Limit > 0 && len(models) > req.Limit {
		models = models[:req.Limit]
	}
	return models, nil
}

// ListCollaborationModes implements provider.Adapter.
func (a *Adapter) ListCollaborationModes(ctx context.Context) ([]schema.CollaborationMode, error) {
	var res listModesResult
	if err := a.transport.Call(ctx, methodListCollaborationModes, struct{}{}, &res); err != nil {
		return nil, a.backendErr("listCollaborationModes", "", err)
	}
	modes := make([]schema.CollaborationMode, 0, len(res.Modes))
	for _, m := range res.Modes {
		modes = append(modes, mapMode(m))
	}
	return modes, nil
}

// SetCollaborationMode implements provider.Adapter.
func (a *Adapter) SetCollaborationMode(ctx context.Context, req schema.SetCollaborationModeCommand) (schema.ClientID, error) {
	params := setModeParams{ConversationID: string(req.ThreadID), Mode: req.Mode}
	var res setModeResult
	if err := a.transport.Call(ctx, methodSetCollaborationMode, params, &res); err != nil {
		return "", a.backendErr("setCollaborationMode", req.ThreadID, err)
	}
	return schema.ClientID(res.OwnerClientID), nil
}

// SubmitUserInput implements provider.Adapter. The answer shape is
// validated against the originating request's method before anything
// touches the wire, and the response is delivered as the JSON-RPC
// answer to the server's own request id.
func (a *Adapter) SubmitUserInput(ctx context.Context, req schema.SubmitUserInputCommand) (schema.ClientID, error) {
	entry, ok := a.lookupPending(req.ThreadID, req.RequestID)
	if !ok {
		return "", &schema.RequestError{Provider: schema.ProviderCodex, ThreadID: req.ThreadID, RequestID: req.RequestID}
	}
	if err := req.Response.Validate(entry.request.Method); err != nil {
		return "", err
	}

	var body any
	switch entry.request.Method {
	case schema.MethodRequestUserInput:
		body = answersResponse{Answers: req.Response.Answers}
	case schema.MethodCommandApproval:
		body = decisionResponse{Decision: string(*req.Response.CommandApproval)}
	case schema.MethodFileChangeApproval:
		body = decisionResponse{Decision: string(*req.Response.FileChangeApproval)}
	case schema.MethodReviewDecision:
		body = reviewResponse{Decision: req.Response.Review.Decision, Note: req.Response.Review.Note}
	default:
		return "", fmt.Errorf("pending request has unknown method %q", entry.request.Method)
	}

	if err := a.transport.Respond(ctx, entry.serverID, body); err != nil {
		return "", a.backendErr("submitUserInput", req.ThreadID, err)
	}
	a.removePending(req.ThreadID, req.RequestID)
	a.events.UserInputResolved(schema.ProviderCodex, req.ThreadID, req.RequestID)
	return "", nil
}

// ReadLiveState implements provider.Adapter.
func (a *Adapter) ReadLiveState(ctx context.Context, req schema.ReadLiveStateCommand) (schema.ReadLiveStateResult, error) {
	params := liveStateParams{ConversationID: string(req.ThreadID)}
	var res liveStateResult
	if err := a.transport.Call(ctx, methodGetLiveState, params, &res); err != nil {
		return schema.ReadLiveStateResult{}, a.backendErr("readLiveState", req.ThreadID, err)
	}
	return mapLiveState(req.ThreadID, res), nil
}

// ReadStreamEvents implements provider.Adapter. Each raw entry is
// re-parsed so malformed backend output fails here instead of inside a
// consumer.
func (a *Adapter) ReadStreamEvents(ctx context.Context, req schema.ReadStreamEventsCommand) (schema.ReadStreamEventsResult, error) {
	params := streamEventsParams{ConversationID: string(req.ThreadID)}
	var res streamEventsResult
	if err := a.transport.Call(ctx, methodGetStreamEvents, params, &res); err != nil {
		return schema.ReadStreamEventsResult{}, a.backendErr("readStreamEvents", req.ThreadID, err)
	}
	out := schema.ReadStreamEventsResult{
		OwnerClientID: schema.ClientID(res.OwnerClientID),
		Events:        make([]json.RawMessage, 0, len(res.Events)),
	}
	for i, raw := range res.Events {
		clean, err := schema.ReparseJSON("streamEvent", raw)
		if err != nil {
			return schema.ReadStreamEventsResult{}, a.backendErr("readStreamEvents", req.ThreadID,
				fmt.Errorf("event %d: %w", i, err))
		}
		out.Events = append(out.Events, clean)
	}
	return out, nil
}

// ListProjectDirectories implements provider.Adapter.
func (a *Adapter) ListProjectDirectories(ctx context.Context) ([]string, error) {
	var res listProjectsResult
	if err := a.transport.Call(ctx, methodListProjects, struct{}{}, &res); err != nil {
		return nil, a.backendErr("listProjectDirectories", "", err)
	}
	return res.Directories, nil
}

func (a *Adapter) backendErr(op string, threadID schema.ThreadID, err error) error {
	return &schema.BackendError{
		Provider:  schema.ProviderCodex,
		Operation: op,
		ThreadID:  threadID,
		Err:       err,
	}
}
