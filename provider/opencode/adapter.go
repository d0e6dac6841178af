package opencode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

const (
	reconnectMin = 250 * time.Millisecond
	reconnectMax = 10 * time.Second
)

var support = schema.Support{
	schema.FeatureListThreads:            true,
	schema.FeatureCreateThread:           true,
	schema.FeatureReadThread:             true,
	schema.FeatureSendMessage:            true,
	schema.FeatureInterrupt:              true,
	schema.FeatureListModels:             false,
	schema.FeatureListCollaborationModes: false,
	schema.FeatureSetCollaborationMode:   false,
	schema.FeatureSubmitUserInput:        true,
	schema.FeatureReadLiveState:          false,
	schema.FeatureReadStreamEvents:       false,
	schema.FeatureListProjectDirectories: true,
}

// Support is the static feature table for the opencode backend.
func Support() schema.Support {
	table := make(schema.Support, len(support))
	for k, v := range support {
		table[k] = v
	}
	return table
}

type modelPref struct {
	modelID    string
	providerID string
}

// Adapter implements provider.Adapter over an opencode Client.
type Adapter struct {
	client  Client
	events  provider.Events
	log     pslog.Logger
	enabled bool

	mu        sync.Mutex
	connected bool
	lastErr   string
	pending   map[schema.ThreadID]map[string]Permission
	models    map[schema.ThreadID]modelPref
}

// New builds an opencode adapter. Events may be nil.
func New(client Client, enabled bool, events provider.Events, log pslog.Logger) *Adapter {
	if events == nil {
		events = provider.NopEvents{}
	}
	return &Adapter{
		client:  client,
		events:  events,
		log:     log,
		enabled: enabled,
		pending: make(map[schema.ThreadID]map[string]Permission),
		models:  make(map[schema.ThreadID]modelPref),
	}
}

// Run keeps an event stream open until ctx ends, reconnecting with
// capped backoff. Connected tracks whether a stream is currently up.
func (a *Adapter) Run(ctx context.Context) {
	delay := reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		stream, err := a.client.Events(ctx)
		if err != nil {
			a.setConnected(false, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}
		delay = reconnectMin
		a.setConnected(true, nil)
		a.log.Info("opencode event stream connected")
		for event := range stream {
			a.handleEvent(event)
		}
		a.setConnected(false, fmt.Errorf("event stream closed"))
		if ctx.Err() != nil {
			return
		}
		a.log.Warn("opencode event stream disconnected")
	}
}

func (a *Adapter) setConnected(connected bool, err error) {
	a.mu.Lock()
	changed := a.connected != connected
	a.connected = connected
	if err != nil && ctxIndependent(err) {
		a.lastErr = err.Error()
	} else if connected {
		a.lastErr = ""
	}
	a.mu.Unlock()
	if changed {
		a.events.StateChanged(schema.ProviderOpencode)
	}
}

func ctxIndependent(err error) bool {
	return err != nil && err != context.Canceled && err != context.DeadlineExceeded
}

func (a *Adapter) handleEvent(event ServerEvent) {
	switch event.Type {
	case eventSessionUpdated:
		var props sessionEventProps
		if err := schema.DecodeLoose("event", event.Properties, &props); err != nil {
			return
		}
		a.events.ThreadChanged(schema.ProviderOpencode, schema.ThreadID(props.Info.ID))
	case eventMessageUpdated:
		var props messageEventProps
		if err := schema.DecodeLoose("event", event.Properties, &props); err != nil {
			return
		}
		a.events.ThreadChanged(schema.ProviderOpencode, schema.ThreadID(props.Info.SessionID))
	case eventPartUpdated:
		var props partEventProps
		if err := schema.DecodeLoose("event", event.Properties, &props); err != nil {
			return
		}
		a.events.ThreadChanged(schema.ProviderOpencode, schema.ThreadID(props.Part.SessionID))
	case eventPermissionUpdated:
		var props permissionEventProps
		if err := schema.DecodeLoose("event", event.Properties, &props); err != nil {
			return
		}
		threadID := schema.ThreadID(props.Permission.SessionID)
		req := mapPermission(props.Permission)
		a.storePending(threadID, props.Permission)
		a.events.UserInputRequested(schema.ProviderOpencode, threadID, req)
	case eventPermissionReplied:
		var props permissionEventProps
		if err := schema.DecodeLoose("event", event.Properties, &props); err != nil {
			return
		}
		threadID := schema.ThreadID(props.SessionID)
		requestID := schema.StringRequestID(props.PermissionID)
		a.removePending(threadID, props.PermissionID)
		a.events.UserInputResolved(schema.ProviderOpencode, threadID, requestID)
	}
}

func (a *Adapter) storePending(threadID schema.ThreadID, p Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byID := a.pending[threadID]
	if byID == nil {
		byID = make(map[string]Permission)
		a.pending[threadID] = byID
	}
	byID[p.ID] = p
}

func (a *Adapter) removePending(threadID schema.ThreadID, permissionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byID := a.pending[threadID]
	delete(byID, permissionID)
	if len(byID) == 0 {
		delete(a.pending, threadID)
	}
}

func (a *Adapter) lookupPending(threadID schema.ThreadID, requestID schema.RequestID) (Permission, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[threadID][requestID.String()]
	return p, ok
}

// Provider implements provider.Adapter.
func (a *Adapter) Provider() schema.ProviderID { return schema.ProviderOpencode }

// Support implements provider.Adapter.
func (a *Adapter) Support() schema.Support { return Support() }

// Enabled implements provider.Adapter.
func (a *Adapter) Enabled() bool { return a.enabled }

// Connected implements provider.Adapter.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// LastError implements provider.Adapter.
func (a *Adapter) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// ListThreads implements provider.Adapter. The server returns the full
// session list in one response; the window is applied locally and the
// listing is always a single page. Sessions have no archival, so an
// archived-only listing is empty rather than silently unfiltered.
func (a *Adapter) ListThreads(ctx context.Context, req schema.ListThreadsCommand) (schema.ThreadPage, error) {
	if req.Archived {
		return schema.ThreadPage{Data: []schema.ThreadSummary{}, Pages: 1}, nil
	}
	sessions, err := a.client.ListSessions(ctx)
	if err != nil {
		return schema.ThreadPage{}, a.backendErr("listThreads", "", err)
	}
	page := schema.ThreadPage{Data: []schema.ThreadSummary{}, Pages: 1}
	for _, s := range sessions {
		page.Data = append(page.Data, mapSummary(s))
	}
	if !req.All && req.Limit > 0 && len(page.Data) > req.Limit {
		page.Data = page.Data[:req.Limit]
		page.Truncated = true
	}
	return page, nil
}

// CreateThread implements provider.Adapter. Model preferences are kept
// locally; the server binds a model per message, not per session.
func (a *Adapter) CreateThread(ctx context.Context, req schema.CreateThreadCommand) (schema.ThreadID, error) {
	session, err := a.client.CreateSession(ctx, CreateSessionRequest{Directory: req.Cwd})
	if err != nil {
		return "", a.backendErr("createThread", "", err)
	}
	threadID := schema.ThreadID(session.ID)
	if req.Model != "" || req.ModelProvider != "" {
		a.mu.Lock()
		a.models[threadID] = modelPref{modelID: string(req.Model), providerID: req.ModelProvider}
		a.mu.Unlock()
	}
	return threadID, nil
}

// ReadThread implements provider.Adapter.
func (a *Adapter) ReadThread(ctx context.Context, req schema.ReadThreadCommand) (schema.Thread, error) {
	session, err := a.client.GetSession(ctx, string(req.ThreadID))
	if err != nil {
		return schema.Thread{}, a.backendErr("readThread", req.ThreadID, err)
	}
	thread := mapSession(session)

	if req.IncludeTurns {
		messages, err := a.client.ListMessages(ctx, session.ID)
		if err != nil {
			return schema.Thread{}, a.backendErr("readThread", req.ThreadID, err)
		}
		thread.Turns = mapTurns(messages)
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Info.ModelID != "" {
				thread.LatestModel = schema.ModelID(messages[i].Info.ModelID)
				break
			}
		}
	}

	permissions, err := a.client.ListPermissions(ctx, session.ID)
	if err != nil {
		return schema.Thread{}, a.backendErr("readThread", req.ThreadID, err)
	}
	for _, p := range permissions {
		a.storePending(thread.ID, p)
		thread.PendingRequests = append(thread.PendingRequests, mapPermission(p))
	}
	return thread, nil
}

// SendMessage implements provider.Adapter. Steering needs no separate
// call path: the server accepts messages into a busy session.
func (a *Adapter) SendMessage(ctx context.Context, req schema.SendMessageCommand) error {
	chat := ChatRequest{Parts: []ChatPart{{Type: "text", Text: req.Text}}}
	a.mu.Lock()
	if pref, ok := a.models[req.ThreadID]; ok {
		chat.ModelID = pref.modelID
		chat.ProviderID = pref.providerID
	}
	a.mu.Unlock()
	if err := a.client.SendMessage(ctx, string(req.ThreadID), chat); err != nil {
		return a.backendErr("sendMessage", req.ThreadID, err)
	}
	return nil
}

// Interrupt implements provider.Adapter.
func (a *Adapter) Interrupt(ctx context.Context, req schema.InterruptCommand) error {
	if err := a.client.Abort(ctx, string(req.ThreadID)); err != nil {
		return a.backendErr("interrupt", req.ThreadID, err)
	}
	return nil
}

// ListModels implements provider.Adapter.
func (a *Adapter) ListModels(context.Context, schema.ListModelsCommand) ([]schema.Model, error) {
	return nil, provider.ErrUnsupported
}

// ListCollaborationModes implements provider.Adapter.
func (a *Adapter) ListCollaborationModes(context.Context) ([]schema.CollaborationMode, error) {
	return nil, provider.ErrUnsupported
}

// SetCollaborationMode implements provider.Adapter.
func (a *Adapter) SetCollaborationMode(context.Context, schema.SetCollaborationModeCommand) (schema.ClientID, error) {
	return "", provider.ErrUnsupported
}

// SubmitUserInput implements provider.Adapter. An abort decision is
// delivered as a rejection followed by a session abort.
func (a *Adapter) SubmitUserInput(ctx context.Context, req schema.SubmitUserInputCommand) (schema.ClientID, error) {
	permission, ok := a.lookupPending(req.ThreadID, req.RequestID)
	if !ok {
		return "", &schema.RequestError{Provider: schema.ProviderOpencode, ThreadID: req.ThreadID, RequestID: req.RequestID}
	}
	method := mapPermission(permission).Method
	if err := req.Response.Validate(method); err != nil {
		return "", err
	}

	var decision schema.ApprovalDecision
	switch method {
	case schema.MethodCommandApproval:
		decision = *req.Response.CommandApproval
	case schema.MethodFileChangeApproval:
		decision = *req.Response.FileChangeApproval
	}
	if err := a.client.RespondPermission(ctx, string(req.ThreadID), permission.ID, mapDecision(decision)); err != nil {
		return "", a.backendErr("submitUserInput", req.ThreadID, err)
	}
	if decision == schema.DecisionAbort {
		if err := a.client.Abort(ctx, string(req.ThreadID)); err != nil {
			a.log.Warn("opencode abort after rejection failed", "thread", req.ThreadID, "err", err)
		}
	}
	a.removePending(req.ThreadID, permission.ID)
	a.events.UserInputResolved(schema.ProviderOpencode, req.ThreadID, req.RequestID)
	return "", nil
}

// ReadLiveState implements provider.Adapter.
func (a *Adapter) ReadLiveState(context.Context, schema.ReadLiveStateCommand) (schema.ReadLiveStateResult, error) {
	return schema.ReadLiveStateResult{}, provider.ErrUnsupported
}

// ReadStreamEvents implements provider.Adapter.
func (a *Adapter) ReadStreamEvents(context.Context, schema.ReadStreamEventsCommand) (schema.ReadStreamEventsResult, error) {
	return schema.ReadStreamEventsResult{}, provider.ErrUnsupported
}

// ListProjectDirectories implements provider.Adapter.
func (a *Adapter) ListProjectDirectories(ctx context.Context) ([]string, error) {
	projects, err := a.client.ListProjects(ctx)
	if err != nil {
		return nil, a.backendErr("listProjectDirectories", "", err)
	}
	directories := make([]string, 0, len(projects))
	for _, p := range projects {
		if p.Worktree != "" {
			directories = append(directories, p.Worktree)
		}
	}
	return directories, nil
}

func (a *Adapter) backendErr(op string, threadID schema.ThreadID, err error) error {
	return &schema.BackendError{
		Provider:  schema.ProviderOpencode,
		Operation: op,
		ThreadID:  threadID,
		Err:       err,
	}
}
