package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/agentdeck/core"
	"pkt.systems/agentdeck/schema"
)

type stubService struct {
	executeFn   func(ctx context.Context, cmd schema.Command) (schema.Result, error)
	resolveFn   func(ctx context.Context, threadID schema.ThreadID) (schema.ProviderID, error)
	listAllFn   func(ctx context.Context, req schema.ListThreadsCommand) (core.AggregatedThreads, error)
	states      []schema.ProviderStateChangedEvent
	matrices    map[schema.ProviderID]schema.FeatureMatrix
	historyList []core.HistoryEntry
	lastCommand schema.Command
}

func (s *stubService) Execute(ctx context.Context, cmd schema.Command) (schema.Result, error) {
	s.lastCommand = cmd
	if s.executeFn != nil {
		return s.executeFn(ctx, cmd)
	}
	return schema.Result{}, fmt.Errorf("executeFn not set")
}

func (s *stubService) FeatureAvailability(context.Context) map[schema.ProviderID]schema.FeatureMatrix {
	return s.matrices
}

func (s *stubService) ProviderStates(context.Context) []schema.ProviderStateChangedEvent {
	return s.states
}

func (s *stubService) ListAllThreads(ctx context.Context, req schema.ListThreadsCommand) (core.AggregatedThreads, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, req)
	}
	return core.AggregatedThreads{}, nil
}

func (s *stubService) ResolveThread(ctx context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, threadID)
	}
	return "", schema.ErrThreadNotFound
}

func (s *stubService) History(limit int) []core.HistoryEntry { return s.historyList }

func (s *stubService) TraceStart(path string) (core.TraceInfo, error) {
	return core.TraceInfo{ID: "trace-1", Path: path}, nil
}

func (s *stubService) TraceStop() (core.TraceInfo, error) {
	return core.TraceInfo{ID: "trace-1", Events: 2}, nil
}

func (s *stubService) Close() error { return nil }

func (s *stubService) ThreadChanged(schema.ProviderID, schema.ThreadID) {}
func (s *stubService) UserInputRequested(schema.ProviderID, schema.ThreadID, schema.UserInputRequest) {
}
func (s *stubService) UserInputResolved(schema.ProviderID, schema.ThreadID, schema.RequestID) {}
func (s *stubService) StateChanged(schema.ProviderID)                                        {}

type stubAuth struct {
	password string
}

func (a *stubAuth) Authenticate(username, password, totp string) error {
	if password != a.password {
		return errors.New("invalid credentials")
	}
	return nil
}

func (a *stubAuth) ChangePassword(username, currentPassword, totp, newPassword string) error {
	return nil
}

func newTestServer(svc core.Service, auth Authenticator) *Server {
	cfg := Config{
		SessionCookie:    "agentdeck_session",
		EventHistorySize: 16,
		KeepaliveSeconds: 60,
	}
	return NewServer(cfg, svc, auth, NewHub(16))
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var env envelope
	// The mux writes plain-text bodies for unmatched routes; only API
	// responses carry the JSON envelope.
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestCommandEndpointSuccess(t *testing.T) {
	svc := &stubService{
		executeFn: func(_ context.Context, cmd schema.Command) (schema.Result, error) {
			return schema.NewResult(&schema.ListModelsResult{
				Data: []schema.Model{{ID: "gpt-5.1-codex"}},
			}), nil
		},
	}
	server := newTestServer(svc, nil)
	body := `{"kind":"listModels","provider":"codex"}`
	rec, env := doRequest(t, server.Handler(), http.MethodPost, "/api/command", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.OK {
		t.Fatalf("expected ok response, got %s", rec.Body.String())
	}
	var result schema.Result
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Kind != schema.CmdListModels {
		t.Fatalf("result kind = %q, want %q", result.Kind, schema.CmdListModels)
	}
	if svc.lastCommand.Provider != "codex" {
		t.Fatalf("command provider = %q, want codex", svc.lastCommand.Provider)
	}
}

func TestCommandEndpointFeatureRefusalStaysHTTP200(t *testing.T) {
	svc := &stubService{
		executeFn: func(_ context.Context, cmd schema.Command) (schema.Result, error) {
			return schema.Result{}, &schema.FeatureError{
				Provider: "codex",
				Feature:  schema.FeatureListProjectDirectories,
				Reason:   schema.ReasonUnsupportedByProvider,
				Message:  "codex does not list project directories",
			}
		},
	}
	server := newTestServer(svc, nil)
	body := `{"kind":"listProjectDirectories","provider":"codex"}`
	rec, env := doRequest(t, server.Handler(), http.MethodPost, "/api/command", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.OK {
		t.Fatalf("expected refusal, got ok")
	}
	if env.Error == nil || env.Error.Code != "unsupportedByProvider" {
		t.Fatalf("error = %+v, want code unsupportedByProvider", env.Error)
	}
	if env.Error.Details["provider"] != "codex" {
		t.Fatalf("details provider = %v, want codex", env.Error.Details["provider"])
	}
}

func TestCommandEndpointRejectsMalformedEnvelope(t *testing.T) {
	server := newTestServer(&stubService{}, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodPost, "/api/command", `{"kind":"noSuchKind"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "validationError" {
		t.Fatalf("error = %+v, want code validationError", env.Error)
	}
}

func TestResolveMapsThreadNotFoundTo404(t *testing.T) {
	svc := &stubService{
		resolveFn: func(_ context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
			return "", fmt.Errorf("thread %s: %w", threadID, schema.ErrThreadNotFound)
		},
	}
	server := newTestServer(svc, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/resolve?id=th-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "threadNotFound" {
		t.Fatalf("error = %+v, want code threadNotFound", env.Error)
	}
}

func TestUnknownUserInputRequestCarriesRequestIDDetails(t *testing.T) {
	svc := &stubService{
		executeFn: func(_ context.Context, cmd schema.Command) (schema.Result, error) {
			return schema.Result{}, &schema.RequestError{
				Provider:  schema.ProviderCodex,
				ThreadID:  "th-1",
				RequestID: schema.StringRequestID("req-9"),
			}
		},
	}
	server := newTestServer(svc, nil)
	body := `{"kind":"submitUserInput","provider":"codex","threadId":"th-1","requestId":"req-9","response":{"commandApproval":"approved"}}`
	rec, env := doRequest(t, server.Handler(), http.MethodPost, "/api/command", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "requestNotFound" {
		t.Fatalf("error = %+v, want code requestNotFound", env.Error)
	}
	if got := env.Error.Details["requestId"]; got != "req-9" {
		t.Fatalf("details.requestId = %v, want req-9", got)
	}
	if got := env.Error.Details["threadId"]; got != "th-1" {
		t.Fatalf("details.threadId = %v, want th-1", got)
	}
}

func TestResolveMapsAmbiguousTo409(t *testing.T) {
	svc := &stubService{
		resolveFn: func(_ context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
			return "", schema.ErrThreadAmbiguous
		},
	}
	server := newTestServer(svc, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/resolve?id=th-1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "threadAmbiguous" {
		t.Fatalf("error = %+v, want code threadAmbiguous", env.Error)
	}
}

func TestThreadsAggregatesWhenNoProviderGiven(t *testing.T) {
	svc := &stubService{
		listAllFn: func(_ context.Context, req schema.ListThreadsCommand) (core.AggregatedThreads, error) {
			if req.Limit != 5 {
				return core.AggregatedThreads{}, fmt.Errorf("limit = %d, want 5", req.Limit)
			}
			return core.AggregatedThreads{
				Data:     []schema.ThreadSummary{{ID: "th-1", Provider: "codex"}},
				Failures: []core.ProviderFailure{{Provider: "opencode", Error: "unreachable"}},
			}, nil
		},
	}
	server := newTestServer(svc, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/threads?limit=5", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	var aggregate core.AggregatedThreads
	if err := json.Unmarshal(env.Result, &aggregate); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if len(aggregate.Data) != 1 || aggregate.Data[0].ID != "th-1" {
		t.Fatalf("unexpected aggregate data: %+v", aggregate.Data)
	}
	if len(aggregate.Failures) != 1 || aggregate.Failures[0].Provider != "opencode" {
		t.Fatalf("unexpected aggregate failures: %+v", aggregate.Failures)
	}
}

func TestThreadResolvesProviderWhenOmitted(t *testing.T) {
	svc := &stubService{
		resolveFn: func(_ context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
			return "opencode", nil
		},
		executeFn: func(_ context.Context, cmd schema.Command) (schema.Result, error) {
			return schema.NewResult(&schema.ReadThreadResult{
				Thread: schema.Thread{ID: "th-1", Provider: "opencode"},
			}), nil
		},
	}
	server := newTestServer(svc, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/thread?id=th-1", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	if svc.lastCommand.Provider != "opencode" {
		t.Fatalf("resolved provider = %q, want opencode", svc.lastCommand.Provider)
	}
	read, ok := svc.lastCommand.Payload.(*schema.ReadThreadCommand)
	if !ok {
		t.Fatalf("payload type = %T, want *ReadThreadCommand", svc.lastCommand.Payload)
	}
	if !read.IncludeTurns {
		t.Fatalf("expected turns included by default")
	}
}

func TestFeaturesEndpoint(t *testing.T) {
	svc := &stubService{
		states: []schema.ProviderStateChangedEvent{
			{Provider: "codex", Enabled: true, Connected: true},
		},
		matrices: map[schema.ProviderID]schema.FeatureMatrix{
			"codex": {schema.FeatureSendMessage: schema.Available()},
		},
	}
	server := newTestServer(svc, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/features", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	var payload struct {
		Providers []schema.ProviderStateChangedEvent         `json:"providers"`
		Features  map[schema.ProviderID]schema.FeatureMatrix `json:"features"`
	}
	if err := json.Unmarshal(env.Result, &payload); err != nil {
		t.Fatalf("decode features: %v", err)
	}
	if len(payload.Providers) != 1 || payload.Providers[0].Provider != "codex" {
		t.Fatalf("unexpected providers: %+v", payload.Providers)
	}
	if !payload.Features["codex"][schema.FeatureSendMessage].Available {
		t.Fatalf("expected sendMessage available for codex")
	}
}

func TestAuthDisabledSkipsSessions(t *testing.T) {
	server := newTestServer(&stubService{}, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodGet, "/api/me", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	var me struct {
		AuthEnabled bool `json:"authEnabled"`
	}
	if err := json.Unmarshal(env.Result, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.AuthEnabled {
		t.Fatalf("expected authEnabled false")
	}
}

func TestAuthEnabledRequiresSession(t *testing.T) {
	server := newTestServer(&stubService{}, &stubAuth{password: "secret"})
	handler := server.Handler()

	rec, env := doRequest(t, handler, http.MethodGet, "/api/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "unauthorized" {
		t.Fatalf("error = %+v, want code unauthorized", env.Error)
	}

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/login", `{"username":"alice","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}

	rec, env = doRequest(t, handler, http.MethodPost, "/api/login", `{"username":"alice","password":"secret"}`)
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("login status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one session cookie, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookies[0])
	authed := httptest.NewRecorder()
	handler.ServeHTTP(authed, req)
	if authed.Code != http.StatusOK {
		t.Fatalf("authed status = %d, want 200", authed.Code)
	}
	var me struct {
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.Unmarshal(authed.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Result.Username != "alice" {
		t.Fatalf("username = %q, want alice", me.Result.Username)
	}
}

func TestLoginRejectedWhenAuthDisabled(t *testing.T) {
	server := newTestServer(&stubService{}, nil)
	rec, env := doRequest(t, server.Handler(), http.MethodPost, "/api/login", `{"username":"alice","password":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "authDisabled" {
		t.Fatalf("error = %+v, want code authDisabled", env.Error)
	}
}

func TestEventsStreamSendsProviderSnapshot(t *testing.T) {
	svc := &stubService{
		states: []schema.ProviderStateChangedEvent{
			{Provider: "codex", Enabled: true, Connected: true},
			{Provider: "opencode", Enabled: true, Connected: false, LastError: "dial refused"},
		},
	}
	server := newTestServer(svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	var snapshots []StreamEvent
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode stream event: %v", err)
		}
		snapshots = append(snapshots, event)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshot events = %d, want 2", len(snapshots))
	}
	state, ok := snapshots[1].Event.Payload.(*schema.ProviderStateChangedEvent)
	if !ok {
		t.Fatalf("payload type = %T, want *ProviderStateChangedEvent", snapshots[1].Event.Payload)
	}
	if state.Provider != "opencode" || state.LastError != "dial refused" {
		t.Fatalf("unexpected snapshot state: %+v", state)
	}
}

func TestEventsStreamReplaysAfterLastEventID(t *testing.T) {
	svc := &stubService{}
	server := newTestServer(svc, nil)
	server.hub.OnUnifiedEvent(schema.NewEvent(&schema.ErrorEvent{Message: "one"}))
	server.hub.OnUnifiedEvent(schema.NewEvent(&schema.ErrorEvent{Message: "two"}))
	server.hub.OnUnifiedEvent(schema.NewEvent(&schema.ErrorEvent{Message: "three"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var messages []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode stream event: %v", err)
		}
		if payload, ok := event.Event.Payload.(*schema.ErrorEvent); ok {
			messages = append(messages, payload.Message)
		}
	}
	if len(messages) != 2 || messages[0] != "two" || messages[1] != "three" {
		t.Fatalf("replayed messages = %v, want [two three]", messages)
	}
}

func TestBasePathRouting(t *testing.T) {
	svc := &stubService{historyList: []core.HistoryEntry{}}
	cfg := Config{
		SessionCookie:    "agentdeck_session",
		BasePath:         "/deck",
		EventHistorySize: 16,
		KeepaliveSeconds: 60,
	}
	server := NewServer(cfg, svc, nil, NewHub(16))
	handler := server.Handler()

	rec, env := doRequest(t, handler, http.MethodGet, "/deck/api/history", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	rec, _ = doRequest(t, handler, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unprefixed status = %d, want 404", rec.Code)
	}
}

func TestTraceEndpoints(t *testing.T) {
	server := newTestServer(&stubService{}, nil)
	handler := server.Handler()

	rec, env := doRequest(t, handler, http.MethodPost, "/api/trace/start", `{"path":"/tmp/trace.ndjson"}`)
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("start status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
	var info core.TraceInfo
	if err := json.Unmarshal(env.Result, &info); err != nil {
		t.Fatalf("decode trace info: %v", err)
	}
	if info.Path != "/tmp/trace.ndjson" {
		t.Fatalf("trace path = %q", info.Path)
	}

	rec, env = doRequest(t, handler, http.MethodPost, "/api/trace/stop", "")
	if rec.Code != http.StatusOK || !env.OK {
		t.Fatalf("stop status = %d ok = %v, want 200 ok", rec.Code, env.OK)
	}
}
