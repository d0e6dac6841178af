// Package provider defines the adapter contract every backend
// implements. An adapter exposes the unified operations over one
// backend's native protocol and reports its own runtime state so the
// availability gate can answer feature queries without touching the
// backend.
package provider

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/agentdeck/schema"
)

// ErrUnsupported is returned by adapter operations the backend does not
// implement. The availability gate refuses such commands before they
// reach the adapter, so seeing this error from a gated call path means
// the support table and the adapter disagree.
var ErrUnsupported = errors.New("operation not supported by provider")

// Events receives runtime notifications from an adapter. Implementations
// must not block; adapters call these from their read loops.
type Events interface {
	// ThreadChanged signals that a thread's content changed. Callers
	// coalesce bursts before reading the thread back.
	ThreadChanged(provider schema.ProviderID, threadID schema.ThreadID)
	// UserInputRequested signals a new pending request on a thread.
	UserInputRequested(provider schema.ProviderID, threadID schema.ThreadID, req schema.UserInputRequest)
	// UserInputResolved signals that a pending request was answered or
	// withdrawn.
	UserInputResolved(provider schema.ProviderID, threadID schema.ThreadID, requestID schema.RequestID)
	// StateChanged signals that Enabled, Connected or LastError may have
	// changed.
	StateChanged(provider schema.ProviderID)
}

// Relay forwards notifications to a target bound after construction.
// Adapters are built before the service that consumes their
// notifications exists; a Relay breaks the cycle. Notifications
// arriving before Bind are dropped.
type Relay struct {
	mu     sync.RWMutex
	target Events
}

// Bind sets the forwarding target.
func (r *Relay) Bind(target Events) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}

func (r *Relay) bound() Events {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target
}

// ThreadChanged implements Events.
func (r *Relay) ThreadChanged(provider schema.ProviderID, threadID schema.ThreadID) {
	if t := r.bound(); t != nil {
		t.ThreadChanged(provider, threadID)
	}
}

// UserInputRequested implements Events.
func (r *Relay) UserInputRequested(provider schema.ProviderID, threadID schema.ThreadID, req schema.UserInputRequest) {
	if t := r.bound(); t != nil {
		t.UserInputRequested(provider, threadID, req)
	}
}

// UserInputResolved implements Events.
func (r *Relay) UserInputResolved(provider schema.ProviderID, threadID schema.ThreadID, requestID schema.RequestID) {
	if t := r.bound(); t != nil {
		t.UserInputResolved(provider, threadID, requestID)
	}
}

// StateChanged implements Events.
func (r *Relay) StateChanged(provider schema.ProviderID) {
	if t := r.bound(); t != nil {
		t.StateChanged(provider)
	}
}

// NopEvents discards all notifications. Useful in tests and for
// adapters constructed before the event pipeline is wired.
type NopEvents struct{}

func (NopEvents) ThreadChanged(schema.ProviderID, schema.ThreadID)                          {}
func (NopEvents) UserInputRequested(schema.ProviderID, schema.ThreadID, schema.UserInputRequest) {}
func (NopEvents) UserInputResolved(schema.ProviderID, schema.ThreadID, schema.RequestID)    {}
func (NopEvents) StateChanged(schema.ProviderID)                                            {}

// Adapter is the provider-facing half of the unified surface. Command
// payloads double as operation options so the wire protocol and the
// adapter contract cannot drift apart.
//
// Operations the backend does not implement return ErrUnsupported and
// carry a false entry in Support. The two must agree; the availability
// gate trusts Support.
type Adapter interface {
	Provider() schema.ProviderID
	Support() schema.Support
	Enabled() bool
	Connected() bool
	LastError() string

	ListThreads(ctx context.Context, req schema.ListThreadsCommand) (schema.ThreadPage, error)
	CreateThread(ctx context.Context, req schema.CreateThreadCommand) (schema.ThreadID, error)
	ReadThread(ctx context.Context, req schema.ReadThreadCommand) (schema.Thread, error)
	SendMessage(ctx context.Context, req schema.SendMessageCommand) error
	Interrupt(ctx context.Context, req schema.InterruptCommand) error
	ListModels(ctx context.Context, req schema.ListModelsCommand) ([]schema.Model, error)
	ListCollaborationModes(ctx context.Context) ([]schema.CollaborationMode, error)
	SetCollaborationMode(ctx context.Context, req schema.SetCollaborationModeCommand) (schema.ClientID, error)
	SubmitUserInput(ctx context.Context, req schema.SubmitUserInputCommand) (schema.ClientID, error)
	ReadLiveState(ctx context.Context, req schema.ReadLiveStateCommand) (schema.ReadLiveStateResult, error)
	ReadStreamEvents(ctx context.Context, req schema.ReadStreamEventsCommand) (schema.ReadStreamEventsResult, error)
	ListProjectDirectories(ctx context.Context) ([]string, error)
}
