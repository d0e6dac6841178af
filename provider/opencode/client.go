package opencode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the wire half of the opencode adapter. HTTPClient
// implements it against a live server; tests substitute fakes.
type Client interface {
	Health(ctx context.Context) error
	ListSessions(ctx context.Context) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]MessageWithParts, error)
	SendMessage(ctx context.Context, sessionID string, req ChatRequest) error
	Abort(ctx context.Context, sessionID string) error
	ListPermissions(ctx context.Context, sessionID string) ([]Permission, error)
	RespondPermission(ctx context.Context, sessionID, permissionID, response string) error
	ListProjects(ctx context.Context) ([]Project, error)
	// Events opens the server's event stream and delivers entries until
	// the stream breaks or ctx ends. The channel is closed on return.
	Events(ctx context.Context) (<-chan ServerEvent, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opencode api status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient talks to an opencode server over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for the given base URL. The request
// timeout applies to unary calls; the event stream gets its own
// untimed client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Health implements Client.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/app", nil, nil)
}

// ListSessions implements Client.
func (c *HTTPClient) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession implements Client.
func (c *HTTPClient) GetSession(ctx context.Context, id string) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(id), nil, &session)
	return session, err
}

// CreateSession implements Client.
func (c *HTTPClient) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/session", req, &session)
	return session, err
}

// ListMessages implements Client.
func (c *HTTPClient) ListMessages(ctx context.Context, sessionID string) ([]MessageWithParts, error) {
	var messages []MessageWithParts
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/message", nil, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage implements Client.
func (c *HTTPClient) SendMessage(ctx context.Context, sessionID string, req ChatRequest) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/message", req, nil)
}

// Abort implements Client.
func (c *HTTPClient) Abort(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/abort", struct{}{}, nil)
}

// ListPermissions implements Client.
func (c *HTTPClient) ListPermissions(ctx context.Context, sessionID string) ([]Permission, error) {
	var permissions []Permission
	err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID)+"/permissions", nil, &permissions)
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

// RespondPermission implements Client.
func (c *HTTPClient) RespondPermission(ctx context.Context, sessionID, permissionID, response string) error {
	body := struct {
		Response string `json:"response"`
	}{Response: response}
	path := "/session/" + url.PathEscape(sessionID) + "/permissions/" + url.PathEscape(permissionID)
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// ListProjects implements Client.
func (c *HTTPClient) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/project", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Events implements Client. The stream is plain SSE: "data:" lines
// carrying one JSON event each.
func (c *HTTPClient) Events(ctx context.Context) (<-chan ServerEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: "event stream refused"}
	}

	out := make(chan ServerEvent, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}
			var event ServerEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
