// Package opencode drives an opencode server over its HTTP API and
// translates sessions, messages and permissions into the unified
// thread model. Runtime updates arrive over the server's event stream.
package opencode

import "encoding/json"

// Session is a conversation session as the server reports it. All
// timestamps are unix milliseconds.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Directory string      `json:"directory"`
	ParentID  *string     `json:"parentID,omitempty"`
	Title     string      `json:"title"`
	Version   string      `json:"version"`
	Time      SessionTime `json:"time"`
}

// SessionTime carries a session's timestamps.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
}

// Message is one message in a session, without its parts.
type Message struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionID"`
	Role       string        `json:"role"`
	Time       MessageTime   `json:"time"`
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Error      *MessageError `json:"error,omitempty"`
}

// MessageTime carries a message's timestamps. Completed stays zero
// while the assistant is still producing output.
type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// MessageError is a terminal message failure.
type MessageError struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// MessageWithParts is the listing shape of /session/{id}/message.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// Part is one unit of message content.
type Part struct {
	ID        string     `json:"id"`
	MessageID string     `json:"messageID"`
	SessionID string     `json:"sessionID"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	CallID    string     `json:"callID,omitempty"`
	State     *ToolState `json:"state,omitempty"`
	URL       string     `json:"url,omitempty"`
	Filename  string     `json:"filename,omitempty"`
}

// ToolState is the lifecycle state of a tool part.
type ToolState struct {
	Status string          `json:"status"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output string          `json:"output,omitempty"`
	Title  string          `json:"title,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Permission is a pending approval the server is blocked on.
type Permission struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionID"`
	Title     string          `json:"title,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Time      PermissionTime  `json:"time"`
}

// PermissionTime carries a permission's timestamps.
type PermissionTime struct {
	Created int64 `json:"created"`
}

// Permission responses accepted by the server.
const (
	permissionOnce   = "once"
	permissionAlways = "always"
	permissionReject = "reject"
)

// Project is one project root the server knows about.
type Project struct {
	ID       string `json:"id"`
	Worktree string `json:"worktree"`
}

// CreateSessionRequest creates a new session.
type CreateSessionRequest struct {
	Directory string `json:"directory,omitempty"`
	Title     string `json:"title,omitempty"`
}

// ChatRequest sends a user message into a session.
type ChatRequest struct {
	Parts      []ChatPart `json:"parts"`
	ModelID    string     `json:"modelID,omitempty"`
	ProviderID string     `json:"providerID,omitempty"`
}

// ChatPart is one part of an outgoing message.
type ChatPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerEvent is one entry from the server's event stream.
type ServerEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Event stream types the adapter reacts to.
const (
	eventSessionUpdated    = "session.updated"
	eventMessageUpdated    = "message.updated"
	eventPartUpdated       = "message.part.updated"
	eventPermissionUpdated = "permission.updated"
	eventPermissionReplied = "permission.replied"
)

type sessionEventProps struct {
	Info Session `json:"info"`
}

type messageEventProps struct {
	Info Message `json:"info"`
}

type partEventProps struct {
	Part Part `json:"part"`
}

type permissionEventProps struct {
	Permission   Permission `json:"permission,omitempty"`
	SessionID    string     `json:"sessionID,omitempty"`
	PermissionID string     `json:"permissionID,omitempty"`
}
