package core

import (
	"context"
	"time"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

// Service is the transport-agnostic API over all registered providers.
// Execute routes a validated command through the availability gate to
// its provider; the remaining methods expose cross-provider views. The
// service doubles as the provider.Events receiver: adapters notify it,
// and it turns notifications into unified events on the sink.
type Service interface {
	provider.Events

	Execute(ctx context.Context, cmd schema.Command) (schema.Result, error)
	FeatureAvailability(ctx context.Context) map[schema.ProviderID]schema.FeatureMatrix
	ProviderStates(ctx context.Context) []schema.ProviderStateChangedEvent
	ListAllThreads(ctx context.Context, req schema.ListThreadsCommand) (AggregatedThreads, error)
	ResolveThread(ctx context.Context, threadID schema.ThreadID) (schema.ProviderID, error)
	History(limit int) []HistoryEntry
	TraceStart(path string) (TraceInfo, error)
	TraceStop() (TraceInfo, error)
	Close() error
}

// ProviderFailure records one provider that could not contribute to a
// fan-out listing.
type ProviderFailure struct {
	Provider schema.ProviderID `json:"provider"`
	Error    string            `json:"error"`
}

// AggregatedThreads is a cross-provider listing. Failures carries the
// providers that errored; the listing is still usable when at least one
// provider answered.
type AggregatedThreads struct {
	Data     []schema.ThreadSummary `json:"data"`
	Failures []ProviderFailure      `json:"failures,omitempty"`
}

// EventSink receives unified events from the core service.
type EventSink interface {
	OnUnifiedEvent(event schema.Event)
}

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	EventSink EventSink
	Logger    pslog.Logger
	// RefreshDelay bounds how long thread change signals are coalesced
	// before the thread is read back and broadcast.
	RefreshDelay time.Duration
	// HistoryCapacity bounds the protocol history ring.
	HistoryCapacity int
	// TraceDir is where traces are written when no explicit path is
	// given on start.
	TraceDir string
	Clock    Clock
}
