package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

const (
	defaultRefreshDelay = 250 * time.Millisecond
	refreshReadTimeout  = 30 * time.Second
)

type threadKey struct {
	provider schema.ProviderID
	thread   schema.ThreadID
}

type service struct {
	registry *Registry
	history  *History
	tracer   *Tracer
	sink     EventSink
	log      pslog.Logger
	refresh  *coalescer[threadKey]

	stateMu   sync.Mutex
	lastState map[schema.ProviderID]schema.ProviderStateChangedEvent
}

type nopSink struct{}

func (nopSink) OnUnifiedEvent(schema.Event) {}

// NewService assembles the unified service over a populated registry.
// The returned value also implements provider.Events; wire it into the
// adapters so runtime notifications flow back through the service.
func NewService(registry *Registry, deps ServiceDeps) (Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if len(registry.Adapters()) == 0 {
		return nil, fmt.Errorf("no providers registered")
	}
	sink := deps.EventSink
	if sink == nil {
		sink = nopSink{}
	}
	log := deps.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	delay := deps.RefreshDelay
	if delay <= 0 {
		delay = defaultRefreshDelay
	}
	s := &service{
		registry:  registry,
		history:   NewHistory(deps.HistoryCapacity),
		tracer:    NewTracer(deps.TraceDir),
		sink:      sink,
		log:       log,
		lastState: make(map[schema.ProviderID]schema.ProviderStateChangedEvent),
	}
	s.refresh = newCoalescer[threadKey](delay, deps.Clock, s.refreshThread)
	return s, nil
}

// Execute implements Service.
func (s *service) Execute(ctx context.Context, cmd schema.Command) (schema.Result, error) {
	if err := cmd.Validate(); err != nil {
		return schema.Result{}, err
	}
	adapter, err := s.registry.Adapter(cmd.Provider)
	if err != nil {
		return schema.Result{}, err
	}
	if adapter.Provider() != cmd.Provider {
		return schema.Result{}, fmt.Errorf("%s routed to %s adapter: %w",
			cmd.Provider, adapter.Provider(), schema.ErrProviderMismatch)
	}
	if err := gate(adapter, cmd.Kind); err != nil {
		return schema.Result{}, err
	}

	s.record("client", "inbound", cmd, map[string]string{
		"kind":     string(cmd.Kind),
		"provider": string(cmd.Provider),
	})

	handler := commandHandlers[cmd.Kind]
	if handler == nil {
		return schema.Result{}, &schema.ValidationError{
			Context: "command",
			Path:    "kind",
			Message: fmt.Sprintf("no handler for kind %q", cmd.Kind),
		}
	}
	start := time.Now()
	resultPayload, err := handler(ctx, s, adapter, cmd)
	if err != nil {
		s.log.Warn("command failed",
			"kind", cmd.Kind, "provider", cmd.Provider, "duration", time.Since(start), "err", err)
		return schema.Result{}, err
	}
	result := schema.NewResult(resultPayload)
	s.record(string(cmd.Provider), "outbound", result, map[string]string{
		"kind": string(cmd.Kind),
	})
	s.log.Debug("command ok", "kind", cmd.Kind, "provider", cmd.Provider, "duration", time.Since(start))
	return result, nil
}

// record appends to the history ring and the active trace. Failures
// here are diagnostics problems, not command failures.
func (s *service) record(source, direction string, payload any, meta map[string]string) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("history marshal failed", "source", source, "err", err)
		return
	}
	s.history.Append(source, direction, data, meta)
	if err := s.tracer.Record(map[string]any{
		"source":    source,
		"direction": direction,
		"payload":   json.RawMessage(data),
		"meta":      meta,
		"timestamp": time.Now().Unix(),
	}); err != nil {
		s.log.Warn("trace write failed", "err", err)
	}
}

// FeatureAvailability implements Service.
func (s *service) FeatureAvailability(context.Context) map[schema.ProviderID]schema.FeatureMatrix {
	matrices := make(map[schema.ProviderID]schema.FeatureMatrix)
	for _, adapter := range s.registry.Adapters() {
		matrices[adapter.Provider()] = featureMatrix(adapter)
	}
	return matrices
}

// ProviderStates implements Service.
func (s *service) ProviderStates(context.Context) []schema.ProviderStateChangedEvent {
	adapters := s.registry.Adapters()
	states := make([]schema.ProviderStateChangedEvent, 0, len(adapters))
	for _, adapter := range adapters {
		states = append(states, providerState(adapter))
	}
	return states
}

func providerState(adapter provider.Adapter) schema.ProviderStateChangedEvent {
	return schema.ProviderStateChangedEvent{
		Provider:  adapter.Provider(),
		Enabled:   adapter.Enabled(),
		Connected: adapter.Connected(),
		LastError: adapter.LastError(),
	}
}

// ListAllThreads implements Service. Providers are queried
// concurrently; a provider that fails or is unavailable contributes a
// failure record instead of sinking the whole listing.
func (s *service) ListAllThreads(ctx context.Context, req schema.ListThreadsCommand) (AggregatedThreads, error) {
	adapters := s.registry.Adapters()
	var wg sync.WaitGroup
	var mu sync.Mutex
	aggregate := AggregatedThreads{Data: []schema.ThreadSummary{}}

	for _, adapter := range adapters {
		if err := gate(adapter, schema.CmdListThreads); err != nil {
			aggregate.Failures = append(aggregate.Failures, ProviderFailure{
				Provider: adapter.Provider(),
				Error:    err.Error(),
			})
			continue
		}
		wg.Add(1)
		go func(adapter provider.Adapter) {
			defer wg.Done()
			page, err := adapter.ListThreads(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				aggregate.Failures = append(aggregate.Failures, ProviderFailure{
					Provider: adapter.Provider(),
					Error:    err.Error(),
				})
				return
			}
			for _, summary := range page.Data {
				s.registry.Observe(summary.ID, adapter.Provider())
			}
			aggregate.Data = append(aggregate.Data, page.Data...)
		}(adapter)
	}
	wg.Wait()

	sort.SliceStable(aggregate.Data, func(i, j int) bool {
		return aggregate.Data[i].UpdatedAt > aggregate.Data[j].UpdatedAt
	})
	sort.Slice(aggregate.Failures, func(i, j int) bool {
		return aggregate.Failures[i].Provider < aggregate.Failures[j].Provider
	})
	if len(aggregate.Failures) == len(adapters) {
		return aggregate, fmt.Errorf("all providers failed to list threads")
	}
	return aggregate, nil
}

// ResolveThread implements Service.
func (s *service) ResolveThread(ctx context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
	return s.registry.Resolve(ctx, threadID)
}

// History implements Service.
func (s *service) History(limit int) []HistoryEntry {
	return s.history.Entries(limit)
}

// TraceStart implements Service.
func (s *service) TraceStart(path string) (TraceInfo, error) {
	info, err := s.tracer.Start(path)
	if err != nil {
		return TraceInfo{}, err
	}
	s.log.Info("trace started", "id", info.ID, "path", info.Path)
	return info, nil
}

// TraceStop implements Service.
func (s *service) TraceStop() (TraceInfo, error) {
	info, err := s.tracer.Stop()
	if err != nil {
		return TraceInfo{}, err
	}
	s.log.Info("trace stopped", "id", info.ID, "events", info.Events)
	return info, nil
}

func (s *service) emit(event schema.Event) {
	s.record("service", "event", event, nil)
	s.sink.OnUnifiedEvent(event)
}

// ThreadChanged implements provider.Events. Bursts of change signals
// collapse into one read per thread per refresh window.
func (s *service) ThreadChanged(providerID schema.ProviderID, threadID schema.ThreadID) {
	s.registry.Observe(threadID, providerID)
	s.refresh.Trigger(threadKey{provider: providerID, thread: threadID})
}

func (s *service) refreshThread(key threadKey) {
	adapter, err := s.registry.Adapter(key.provider)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshReadTimeout)
	defer cancel()
	thread, err := adapter.ReadThread(ctx, schema.ReadThreadCommand{ThreadID: key.thread, IncludeTurns: true})
	if err != nil {
		s.log.Warn("thread refresh failed", "provider", key.provider, "thread", key.thread, "err", err)
		return
	}
	s.emit(schema.NewEvent(&schema.ThreadUpdatedEvent{
		ThreadID: thread.ID,
		Provider: key.provider,
		Thread:   thread,
	}))
}

// UserInputRequested implements provider.Events.
func (s *service) UserInputRequested(_ schema.ProviderID, threadID schema.ThreadID, req schema.UserInputRequest) {
	s.emit(schema.NewEvent(&schema.UserInputRequestedEvent{ThreadID: threadID, Request: req}))
}

// UserInputResolved implements provider.Events.
func (s *service) UserInputResolved(_ schema.ProviderID, threadID schema.ThreadID, requestID schema.RequestID) {
	s.emit(schema.NewEvent(&schema.UserInputResolvedEvent{ThreadID: threadID, RequestID: requestID}))
}

// StateChanged implements provider.Events. Only genuine transitions
// are broadcast; adapters may signal conservatively.
func (s *service) StateChanged(providerID schema.ProviderID) {
	adapter, err := s.registry.Adapter(providerID)
	if err != nil {
		return
	}
	state := providerState(adapter)
	s.stateMu.Lock()
	last, seen := s.lastState[providerID]
	if seen && last == state {
		s.stateMu.Unlock()
		return
	}
	s.lastState[providerID] = state
	s.stateMu.Unlock()
	s.log.Info("provider state changed",
		"provider", state.Provider, "enabled", state.Enabled, "connected", state.Connected)
	s.emit(schema.NewEvent(&state))
}

// Close releases the service's timers and any active trace.
func (s *service) Close() error {
	s.refresh.Stop()
	if s.tracer.Active() {
		if _, err := s.tracer.Stop(); err != nil {
			return err
		}
	}
	return nil
}
