package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/agentdeck/core"
	"pkt.systems/agentdeck/internal/logx"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

// Authenticator verifies username, password, and totp. A nil
// Authenticator disables session auth entirely (local desktop mode).
type Authenticator interface {
	Authenticate(username, password, totp string) error
	ChangePassword(username, currentPassword, totp, newPassword string) error
}

// Server serves the unified HTTP API and the SSE event stream.
type Server struct {
	cfg       Config
	service   core.Service
	authStore Authenticator
	sessions  *sessionStore
	hub       *Hub
	basePath  string
	keepalive time.Duration
}

const maxCommandBytes = 2 << 20

// NewServer constructs an HTTP server over the unified service.
func NewServer(cfg Config, service core.Service, authStore Authenticator, hub *Hub) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	keepalive := time.Duration(cfg.KeepaliveSeconds) * time.Second
	if keepalive <= 0 {
		keepalive = 25 * time.Second
	}
	return &Server{
		cfg:       cfg,
		service:   service,
		authStore: authStore,
		sessions:  newSessionStore(ttl),
		hub:       hub,
		basePath:  normalizeBasePath(cfg.BasePath),
		keepalive: keepalive,
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/me", s.requireSession(s.handleMe))
	mux.HandleFunc("/api/command", s.requireSession(s.handleCommand))
	mux.HandleFunc("/api/threads", s.requireSession(s.handleThreads))
	mux.HandleFunc("/api/thread", s.requireSession(s.handleThread))
	mux.HandleFunc("/api/models", s.requireSession(s.handleModels))
	mux.HandleFunc("/api/modes", s.requireSession(s.handleModes))
	mux.HandleFunc("/api/livestate", s.requireSession(s.handleLiveState))
	mux.HandleFunc("/api/streamevents", s.requireSession(s.handleStreamEvents))
	mux.HandleFunc("/api/projects", s.requireSession(s.handleProjects))
	mux.HandleFunc("/api/features", s.requireSession(s.handleFeatures))
	mux.HandleFunc("/api/resolve", s.requireSession(s.handleResolve))
	mux.HandleFunc("/api/history", s.requireSession(s.handleHistory))
	mux.HandleFunc("/api/schema", s.requireSession(s.handleSchema))
	mux.HandleFunc("/api/trace/start", s.requireSession(s.handleTraceStart))
	mux.HandleFunc("/api/trace/stop", s.requireSession(s.handleTraceStop))
	mux.HandleFunc("/api/events", s.requireSession(s.handleEvents))

	handler := withRequestLogging(mux, s.lookupSession)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	if s.authStore == nil {
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "authDisabled", Message: "session auth is not configured"})
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http login decode failed", "err", err)
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: err.Error()})
		return
	}
	log = log.With("user", payload.Username)
	if err := s.authStore.Authenticate(payload.Username, payload.Password, payload.TOTP); err != nil {
		log.Warn("http login failed", "err", err)
		writeAPIError(w, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: err.Error()})
		return
	}
	token, sess := s.sessions.create(payload.Username)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.expiresAt,
	})
	writeOK(w, map[string]any{"username": payload.Username})
	log.Info("http login ok")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := s.sessionToken(r)
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	if token != "" {
		if entry, ok := s.sessions.get(token); ok {
			log = log.With("user", entry.username, "http_session", entry.id)
		}
		s.sessions.delete(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeOK(w, map[string]any{"loggedOut": true})
	log.Info("http logout")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, username string) {
	writeOK(w, map[string]any{
		"username":    username,
		"authEnabled": s.authStore != nil,
		"baseHref":    buildBaseHref(s.cfg.BaseURL, s.cfg.BasePath),
	})
}

// handleCommand is the single write entry point: a unified command
// envelope in, a unified result or structured error out.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: err.Error()})
		return
	}
	if len(body) > maxCommandBytes {
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: "command exceeds 2MB limit"})
		return
	}
	var cmd schema.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		log.Warn("http command decode failed", "err", err)
		s.writeError(w, &schema.ValidationError{Context: "command", Err: err})
		return
	}
	result, err := s.service.Execute(r.Context(), cmd)
	if err != nil {
		log.Warn("http command failed", "kind", cmd.Kind, "provider", cmd.Provider, "err", err)
		s.writeError(w, err)
		return
	}
	writeOK(w, result)
	log.Info("http command ok", "kind", cmd.Kind, "provider", cmd.Provider)
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	req := schema.ListThreadsCommand{
		Limit:    parseInt(r.URL.Query().Get("limit"), 0),
		Archived: parseBool(r.URL.Query().Get("archived")),
		All:      parseBool(r.URL.Query().Get("all")),
		Cursor:   r.URL.Query().Get("cursor"),
	}
	providerID := schema.ProviderID(r.URL.Query().Get("provider"))
	if providerID == "" {
		aggregate, err := s.service.ListAllThreads(r.Context(), req)
		if err != nil {
			log.Warn("http threads failed", "err", err)
			s.writeError(w, err)
			return
		}
		writeOK(w, aggregate)
		log.Info("http threads ok", "count", len(aggregate.Data), "failures", len(aggregate.Failures))
		return
	}
	result, err := s.service.Execute(r.Context(), schema.NewCommand(providerID, &req))
	if err != nil {
		log.Warn("http threads failed", "provider", providerID, "err", err)
		s.writeError(w, err)
		return
	}
	writeOK(w, result)
	log.Info("http threads ok", "provider", providerID)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := schema.ThreadID(r.URL.Query().Get("id"))
	includeTurns := true
	if value := r.URL.Query().Get("turns"); value != "" {
		includeTurns = parseBool(value)
	}
	s.executeResolved(w, r, schema.ProviderID(r.URL.Query().Get("provider")), threadID,
		&schema.ReadThreadCommand{ThreadID: threadID, IncludeTurns: includeTurns})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.executeFor(w, r, schema.ProviderID(r.URL.Query().Get("provider")),
		&schema.ListModelsCommand{Limit: parseInt(r.URL.Query().Get("limit"), 0)})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.executeFor(w, r, schema.ProviderID(r.URL.Query().Get("provider")),
		&schema.ListCollaborationModesCommand{})
}

func (s *Server) handleLiveState(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := schema.ThreadID(r.URL.Query().Get("id"))
	s.executeResolved(w, r, schema.ProviderID(r.URL.Query().Get("provider")), threadID,
		&schema.ReadLiveStateCommand{ThreadID: threadID})
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := schema.ThreadID(r.URL.Query().Get("id"))
	s.executeResolved(w, r, schema.ProviderID(r.URL.Query().Get("provider")), threadID,
		&schema.ReadStreamEventsCommand{ThreadID: threadID})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.executeFor(w, r, schema.ProviderID(r.URL.Query().Get("provider")),
		&schema.ListProjectDirectoriesCommand{})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeOK(w, map[string]any{
		"providers": s.service.ProviderStates(r.Context()),
		"features":  s.service.FeatureAvailability(r.Context()),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	threadID := schema.ThreadID(r.URL.Query().Get("id"))
	if threadID == "" {
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: "id is required"})
		return
	}
	providerID, err := s.service.ResolveThread(r.Context(), threadID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"threadId": threadID, "provider": providerID})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 0)
	entries := s.service.History(limit)
	writeOK(w, map[string]any{"entries": entries})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeOK(w, schema.ProtocolSchemas())
}

func (s *Server) handleTraceStart(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Path string `json:"path"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: err.Error()})
			return
		}
	}
	info, err := s.service.TraceStart(payload.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeOK(w, info)
}

func (s *Server) handleTraceStop(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, err := s.service.TraceStop()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeOK(w, info)
}

// handleEvents streams unified events over SSE. Every new client first
// receives the current provider-state snapshot as synthetic events, so
// no client waits for the next natural transition to learn current
// state. Delivery past that is at-most-once.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, apiError{Code: "internalError", Message: "stream unsupported"})
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	states := s.service.ProviderStates(r.Context())
	for _, state := range states {
		state := state
		_ = writeSSEvent(w, StreamEvent{
			Event:     schema.NewEvent(&state),
			Timestamp: time.Now(),
		})
	}
	flusher.Flush()

	replayCount := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(lastID) {
			if writeSSEvent(w, event) != nil {
				return
			}
			replayCount++
		}
		flusher.Flush()
	}

	ch, unsubscribe, _ := s.hub.Subscribe()
	defer unsubscribe()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "providers", len(states))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				log.Info("http stream closed", "err", err)
				return
			}
			flusher.Flush()
		case event := <-ch:
			if err := writeSSEvent(w, event); err != nil {
				log.Info("http stream closed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

// executeFor runs a command against an explicitly named provider.
func (s *Server) executeFor(w http.ResponseWriter, r *http.Request, providerID schema.ProviderID, payload schema.CommandPayload) {
	log := logx.WithProvider(r.Context(), providerID)
	cmd := schema.NewCommand(providerID, payload)
	result, err := s.service.Execute(r.Context(), cmd)
	if err != nil {
		log.Warn("http query failed", "kind", cmd.Kind, "err", err)
		s.writeError(w, err)
		return
	}
	writeOK(w, result)
	log.Debug("http query ok", "kind", cmd.Kind)
}

// executeResolved runs a thread-scoped command, resolving the owning
// provider first when the caller did not name one.
func (s *Server) executeResolved(w http.ResponseWriter, r *http.Request, providerID schema.ProviderID, threadID schema.ThreadID, payload schema.CommandPayload) {
	if threadID == "" {
		writeAPIError(w, http.StatusBadRequest, apiError{Code: "validationError", Message: "id is required"})
		return
	}
	if providerID == "" {
		resolved, err := s.service.ResolveThread(r.Context(), threadID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		providerID = resolved
	}
	s.executeFor(w, r, providerID, payload)
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authStore == nil {
			next(w, r, "")
			return
		}
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		if token == "" {
			log.Warn("http session missing")
			writeAPIError(w, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: "missing session"})
			return
		}
		entry, ok := s.sessions.get(token)
		if !ok {
			log.Warn("http session invalid")
			writeAPIError(w, http.StatusUnauthorized, apiError{Code: "unauthorized", Message: "invalid session"})
			return
		}
		log = log.With("user", entry.username, "http_session", entry.id)
		next(w, r.WithContext(pslog.ContextWithLogger(r.Context(), log)), entry.username)
	}
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) (string, string) {
	if s == nil || r == nil || s.authStore == nil {
		return "", ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return "", ""
	}
	entry, ok := s.sessions.get(token)
	if !ok {
		return "", ""
	}
	return entry.username, entry.id
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError translates the service error taxonomy into the response
// envelope. Feature refusals are expected conditions and stay HTTP 200
// with ok:false; provider-mismatch and backend failures surface as 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, apiErr := classifyError(err)
	writeAPIError(w, status, apiErr)
}

func classifyError(err error) (int, apiError) {
	var featureErr *schema.FeatureError
	if errors.As(err, &featureErr) {
		return http.StatusOK, apiError{
			Code:    string(featureErr.Reason),
			Message: featureErr.Message,
			Details: map[string]any{
				"provider": featureErr.Provider,
				"feature":  featureErr.Feature,
			},
		}
	}
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]any{"context": validationErr.Context}
		if validationErr.Path != "" {
			details["path"] = validationErr.Path
		}
		return http.StatusBadRequest, apiError{Code: "validationError", Message: err.Error(), Details: details}
	}
	var requestErr *schema.RequestError
	if errors.As(err, &requestErr) {
		return http.StatusNotFound, apiError{
			Code:    "requestNotFound",
			Message: err.Error(),
			Details: map[string]any{
				"provider":  requestErr.Provider,
				"threadId":  requestErr.ThreadID,
				"requestId": requestErr.RequestID,
			},
		}
	}
	switch {
	case errors.Is(err, schema.ErrAnswerShape):
		return http.StatusBadRequest, apiError{Code: "answerShapeMismatch", Message: err.Error()}
	case errors.Is(err, schema.ErrUnknownProvider):
		return http.StatusBadRequest, apiError{Code: "unknownProvider", Message: err.Error()}
	case errors.Is(err, schema.ErrThreadNotFound):
		return http.StatusNotFound, apiError{Code: "threadNotFound", Message: err.Error()}
	case errors.Is(err, schema.ErrRequestNotFound):
		return http.StatusNotFound, apiError{Code: "requestNotFound", Message: err.Error()}
	case errors.Is(err, schema.ErrThreadAmbiguous):
		return http.StatusConflict, apiError{Code: "threadAmbiguous", Message: err.Error()}
	case errors.Is(err, schema.ErrTraceActive):
		return http.StatusConflict, apiError{Code: "traceActive", Message: err.Error()}
	case errors.Is(err, schema.ErrTraceNotActive):
		return http.StatusConflict, apiError{Code: "traceNotActive", Message: err.Error()}
	case errors.Is(err, schema.ErrProviderMismatch):
		return http.StatusInternalServerError, apiError{Code: "providerMismatch", Message: err.Error()}
	}
	var backendErr *schema.BackendError
	if errors.As(err, &backendErr) {
		details := map[string]any{
			"provider":  backendErr.Provider,
			"operation": backendErr.Operation,
		}
		if backendErr.ThreadID != "" {
			details["threadId"] = backendErr.ThreadID
		}
		return http.StatusInternalServerError, apiError{Code: "backendError", Message: err.Error(), Details: details}
	}
	return http.StatusInternalServerError, apiError{Code: "internalError", Message: err.Error()}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeOK(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func writeAPIError(w http.ResponseWriter, status int, apiErr apiError) {
	writeJSON(w, status, map[string]any{"ok": false, "error": apiErr})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.Seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return err
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}
