package opencode

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

type fakeClient struct {
	mu          sync.Mutex
	sessions    []Session
	messages    map[string][]MessageWithParts
	permissions map[string][]Permission
	projects    []Project
	responded   []string
	aborted     []string
	failWith    error
	events      chan ServerEvent
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages:    make(map[string][]MessageWithParts),
		permissions: make(map[string][]Permission),
		events:      make(chan ServerEvent, 8),
	}
}

func (f *fakeClient) Health(context.Context) error { return f.failWith }

func (f *fakeClient) ListSessions(context.Context) ([]Session, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.sessions, nil
}

func (f *fakeClient) GetSession(_ context.Context, id string) (Session, error) {
	if f.failWith != nil {
		return Session{}, f.failWith
	}
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, &APIError{StatusCode: 404, Body: "no session"}
}

func (f *fakeClient) CreateSession(_ context.Context, req CreateSessionRequest) (Session, error) {
	if f.failWith != nil {
		return Session{}, f.failWith
	}
	session := Session{ID: "new-session", Directory: req.Directory}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeClient) ListMessages(_ context.Context, sessionID string) ([]MessageWithParts, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.messages[sessionID], nil
}

func (f *fakeClient) SendMessage(_ context.Context, sessionID string, req ChatRequest) error {
	return f.failWith
}

func (f *fakeClient) Abort(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, sessionID)
	return f.failWith
}

func (f *fakeClient) ListPermissions(_ context.Context, sessionID string) ([]Permission, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.permissions[sessionID], nil
}

func (f *fakeClient) RespondPermission(_ context.Context, sessionID, permissionID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded = append(f.responded, sessionID+"/"+permissionID+"/"+response)
	return f.failWith
}

func (f *fakeClient) ListProjects(context.Context) ([]Project, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.projects, nil
}

func (f *fakeClient) Events(context.Context) (<-chan ServerEvent, error) {
	return f.events, nil
}

type eventRecorder struct {
	requested chan schema.UserInputRequest
	resolved  chan schema.RequestID
	changed   chan schema.ThreadID
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		requested: make(chan schema.UserInputRequest, 8),
		resolved:  make(chan schema.RequestID, 8),
		changed:   make(chan schema.ThreadID, 8),
	}
}

func (r *eventRecorder) ThreadChanged(_ schema.ProviderID, id schema.ThreadID) { r.changed <- id }

func (r *eventRecorder) UserInputRequested(_ schema.ProviderID, _ schema.ThreadID, req schema.UserInputRequest) {
	r.requested <- req
}

func (r *eventRecorder) UserInputResolved(_ schema.ProviderID, _ schema.ThreadID, id schema.RequestID) {
	r.resolved <- id
}

func (r *eventRecorder) StateChanged(schema.ProviderID) {}

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}

func testAdapter(t *testing.T) (*Adapter, *fakeClient, *eventRecorder) {
	t.Helper()
	client := newFakeClient()
	events := newEventRecorder()
	return New(client, true, events, testLogger()), client, events
}

func TestListThreadsMapsAndLimits(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	client.sessions = []Session{
		{ID: "s1", Title: "one", Directory: "/w1", Time: SessionTime{Created: 1700000000000, Updated: 1700000100000}},
		{ID: "s2", Title: "two", Directory: "/w2", Time: SessionTime{Created: 1700000200000}},
	}

	page, err := adapter.ListThreads(context.Background(), schema.ListThreadsCommand{Limit: 1})
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(page.Data) != 1 || !page.Truncated {
		t.Fatalf("window not applied: %+v", page)
	}
	if page.Data[0].CreatedAt != 1700000000 || page.Data[0].UpdatedAt != 1700000100 {
		t.Fatalf("timestamps not normalized: %+v", page.Data[0])
	}
	if page.Data[0].Provider != schema.ProviderOpencode {
		t.Fatalf("provider = %q", page.Data[0].Provider)
	}
}

func TestListThreadsArchivedFilterYieldsEmptyPage(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	client.sessions = []Session{{ID: "s1", Title: "one"}}

	// No session can be archived, so the archived view holds nothing.
	page, err := adapter.ListThreads(context.Background(), schema.ListThreadsCommand{Archived: true})
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(page.Data) != 0 || page.Truncated {
		t.Fatalf("archived listing: %+v", page)
	}
}

func TestReadThreadGroupsTurns(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	client.sessions = []Session{{ID: "s1", Title: "demo", Time: SessionTime{Created: 1700000000000}}}
	client.messages["s1"] = []MessageWithParts{
		{
			Info:  Message{ID: "m1", SessionID: "s1", Role: "user", Time: MessageTime{Created: 1700000001000}},
			Parts: []Part{{ID: "p1", Type: "text", Text: "run the tests"}},
		},
		{
			Info: Message{ID: "m2", SessionID: "s1", Role: "assistant", ModelID: "big-model",
				Time: MessageTime{Created: 1700000002000, Completed: 1700000005000}},
			Parts: []Part{
				{ID: "p2", Type: "reasoning", Text: "thinking"},
				{ID: "p3", Type: "tool", Tool: "bash", State: &ToolState{
					Status: "completed",
					Input:  []byte(`{"command":"go test ./..."}`),
					Output: "ok",
				}},
				{ID: "p4", Type: "text", Text: "all green"},
				{ID: "p5", Type: "step-start"},
			},
		},
		{
			Info:  Message{ID: "m3", SessionID: "s1", Role: "user", Time: MessageTime{Created: 1700000010000}},
			Parts: []Part{{ID: "p6", Type: "text", Text: "now deploy"}},
		},
		{
			Info:  Message{ID: "m4", SessionID: "s1", Role: "assistant", ModelID: "big-model", Time: MessageTime{Created: 1700000011000}},
			Parts: []Part{{ID: "p7", Type: "text", Text: "working"}},
		},
	}

	thread, err := adapter.ReadThread(context.Background(), schema.ReadThreadCommand{ThreadID: "s1", IncludeTurns: true})
	if err != nil {
		t.Fatalf("ReadThread: %v", err)
	}
	if len(thread.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(thread.Turns))
	}

	first := thread.Turns[0]
	if first.Status != schema.TurnCompleted {
		t.Fatalf("first turn status = %q", first.Status)
	}
	if first.StartedAt != 1700000001 {
		t.Fatalf("startedAt = %d", first.StartedAt)
	}
	// user message, reasoning, command execution, agent message; the
	// step marker is dropped.
	if len(first.Items) != 4 {
		t.Fatalf("first turn items = %d: %+v", len(first.Items), first.Items)
	}
	exec, ok := first.Items[2].Payload.(*schema.CommandExecutionItem)
	if !ok {
		t.Fatalf("item 2 payload %T", first.Items[2].Payload)
	}
	if exec.Command != "go test ./..." || exec.AggregatedOutput != "ok" {
		t.Fatalf("exec item: %+v", exec)
	}

	second := thread.Turns[1]
	if !second.Status.InProgress() {
		t.Fatalf("second turn status = %q", second.Status)
	}
	if thread.LatestModel != "big-model" {
		t.Fatalf("latestModel = %q", thread.LatestModel)
	}
}

func TestReadThreadRegistersPermissions(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	client.sessions = []Session{{ID: "s1"}}
	client.permissions["s1"] = []Permission{
		{ID: "perm-1", Type: "bash", SessionID: "s1", Title: "run rm?"},
	}

	thread, err := adapter.ReadThread(context.Background(), schema.ReadThreadCommand{ThreadID: "s1"})
	if err != nil {
		t.Fatalf("ReadThread: %v", err)
	}
	if len(thread.PendingRequests) != 1 {
		t.Fatalf("pending = %d", len(thread.PendingRequests))
	}
	req := thread.PendingRequests[0]
	if req.Method != schema.MethodCommandApproval || req.ID.String() != "perm-1" || req.ID.Numeric() {
		t.Fatalf("request: %+v", req)
	}

	decision := schema.DecisionApproved
	if _, err := adapter.SubmitUserInput(context.Background(), schema.SubmitUserInputCommand{
		ThreadID:  "s1",
		RequestID: req.ID,
		Response:  schema.UserInputAnswer{CommandApproval: &decision},
	}); err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}
	client.mu.Lock()
	responded := append([]string(nil), client.responded...)
	client.mu.Unlock()
	if len(responded) != 1 || responded[0] != "s1/perm-1/once" {
		t.Fatalf("responded: %v", responded)
	}
}

func TestSubmitUserInputAbortRejectsAndAborts(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	adapter.storePending("s1", Permission{ID: "perm-2", Type: "edit", SessionID: "s1"})

	decision := schema.DecisionAbort
	if _, err := adapter.SubmitUserInput(context.Background(), schema.SubmitUserInputCommand{
		ThreadID:  "s1",
		RequestID: schema.StringRequestID("perm-2"),
		Response:  schema.UserInputAnswer{FileChangeApproval: &decision},
	}); err != nil {
		t.Fatalf("SubmitUserInput: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.responded) != 1 || client.responded[0] != "s1/perm-2/reject" {
		t.Fatalf("responded: %v", client.responded)
	}
	if len(client.aborted) != 1 || client.aborted[0] != "s1" {
		t.Fatalf("aborted: %v", client.aborted)
	}
}

func TestSubmitUserInputUnknownRequest(t *testing.T) {
	adapter, _, _ := testAdapter(t)
	decision := schema.DecisionApproved
	_, err := adapter.SubmitUserInput(context.Background(), schema.SubmitUserInputCommand{
		ThreadID:  "s1",
		RequestID: schema.StringRequestID("nope"),
		Response:  schema.UserInputAnswer{CommandApproval: &decision},
	})
	if !errors.Is(err, schema.ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestSubmitUserInputShapeMismatch(t *testing.T) {
	adapter, _, _ := testAdapter(t)
	adapter.storePending("s1", Permission{ID: "perm-3", Type: "bash", SessionID: "s1"})

	_, err := adapter.SubmitUserInput(context.Background(), schema.SubmitUserInputCommand{
		ThreadID:  "s1",
		RequestID: schema.StringRequestID("perm-3"),
		Response:  schema.UserInputAnswer{Answers: map[string]string{"q": "a"}},
	})
	if !errors.Is(err, schema.ErrAnswerShape) {
		t.Fatalf("err = %v, want ErrAnswerShape", err)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	adapter, _, _ := testAdapter(t)
	ctx := context.Background()

	if _, err := adapter.ListModels(ctx, schema.ListModelsCommand{}); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("ListModels err = %v", err)
	}
	if _, err := adapter.ListCollaborationModes(ctx); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("ListCollaborationModes err = %v", err)
	}
	if _, err := adapter.SetCollaborationMode(ctx, schema.SetCollaborationModeCommand{}); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("SetCollaborationMode err = %v", err)
	}
	if _, err := adapter.ReadLiveState(ctx, schema.ReadLiveStateCommand{}); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("ReadLiveState err = %v", err)
	}
	if _, err := adapter.ReadStreamEvents(ctx, schema.ReadStreamEventsCommand{}); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("ReadStreamEvents err = %v", err)
	}

	table := adapter.Support()
	for _, feature := range []schema.FeatureID{
		schema.FeatureListModels,
		schema.FeatureListCollaborationModes,
		schema.FeatureSetCollaborationMode,
		schema.FeatureReadLiveState,
		schema.FeatureReadStreamEvents,
	} {
		if table[feature] {
			t.Fatalf("support table claims %s", feature)
		}
	}
}

func TestEventStreamDrivesNotifications(t *testing.T) {
	adapter, client, events := testAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go adapter.Run(ctx)

	client.events <- ServerEvent{
		Type:       eventPermissionUpdated,
		Properties: []byte(`{"permission":{"id":"perm-9","type":"bash","sessionID":"s9","title":"approve?"}}`),
	}

	select {
	case req := <-events.requested:
		if req.ID.String() != "perm-9" || req.Method != schema.MethodCommandApproval {
			t.Fatalf("request: %+v", req)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for permission request")
	}

	client.events <- ServerEvent{
		Type:       eventPermissionReplied,
		Properties: []byte(`{"sessionID":"s9","permissionID":"perm-9"}`),
	}

	select {
	case id := <-events.resolved:
		if id.String() != "perm-9" {
			t.Fatalf("resolved id = %s", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for resolution")
	}

	client.events <- ServerEvent{
		Type:       eventSessionUpdated,
		Properties: []byte(`{"info":{"id":"s9"}}`),
	}

	select {
	case id := <-events.changed:
		if id != "s9" {
			t.Fatalf("changed thread = %s", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for thread change")
	}
}

func TestListProjectDirectories(t *testing.T) {
	adapter, client, _ := testAdapter(t)
	client.projects = []Project{{ID: "p1", Worktree: "/src/one"}, {ID: "p2"}}

	directories, err := adapter.ListProjectDirectories(context.Background())
	if err != nil {
		t.Fatalf("ListProjectDirectories: %v", err)
	}
	if len(directories) != 1 || directories[0] != "/src/one" {
		t.Fatalf("directories: %v", directories)
	}
}
