package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
)

// Registry holds the registered provider adapters and resolves thread
// ids to their owning provider.
type Registry struct {
	mu       sync.RWMutex
	adapters map[schema.ProviderID]provider.Adapter
	// owners caches thread→provider attributions learned from listings
	// and creations. A thread seen under two providers is ambiguous
	// until addressed explicitly.
	owners map[schema.ThreadID]map[schema.ProviderID]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[schema.ProviderID]provider.Adapter),
		owners:   make(map[schema.ThreadID]map[schema.ProviderID]struct{}),
	}
}

// Register adds an adapter. Registering the same provider twice is a
// programming error.
func (r *Registry) Register(adapter provider.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := adapter.Provider()
	if !id.Valid() {
		return fmt.Errorf("%w: %q", schema.ErrUnknownProvider, id)
	}
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.adapters[id] = adapter
	return nil
}

// Adapter returns the adapter for a provider id.
func (r *Registry) Adapter(id schema.ProviderID) (provider.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownProvider, id)
	}
	return adapter, nil
}

// Adapters returns all registered adapters in stable provider order.
func (r *Registry) Adapters() []provider.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	adapters := make([]provider.Adapter, 0, len(ids))
	for _, id := range ids {
		adapters = append(adapters, r.adapters[schema.ProviderID(id)])
	}
	return adapters
}

// Observe records that a thread was seen under a provider.
func (r *Registry) Observe(threadID schema.ThreadID, providerID schema.ProviderID) {
	if threadID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := r.owners[threadID]
	if owners == nil {
		owners = make(map[schema.ProviderID]struct{}, 1)
		r.owners[threadID] = owners
	}
	owners[providerID] = struct{}{}
}

// Resolve maps a thread id to its provider using cached attributions,
// falling back to asking every adapter that can read threads. An id
// claimed by more than one provider is ambiguous and must be addressed
// with an explicit provider instead.
func (r *Registry) Resolve(ctx context.Context, threadID schema.ThreadID) (schema.ProviderID, error) {
	r.mu.RLock()
	owners := make([]schema.ProviderID, 0, 2)
	for id := range r.owners[threadID] {
		owners = append(owners, id)
	}
	r.mu.RUnlock()

	switch len(owners) {
	case 1:
		return owners[0], nil
	case 0:
	default:
		return "", fmt.Errorf("thread %s claimed by %d providers: %w", threadID, len(owners), schema.ErrThreadAmbiguous)
	}

	var found []schema.ProviderID
	for _, adapter := range r.Adapters() {
		if !adapter.Enabled() || !adapter.Connected() {
			continue
		}
		if !adapter.Support().Supports(schema.FeatureReadThread) {
			continue
		}
		if _, err := adapter.ReadThread(ctx, schema.ReadThreadCommand{ThreadID: threadID}); err != nil {
			continue
		}
		found = append(found, adapter.Provider())
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("thread %s: %w", threadID, schema.ErrThreadNotFound)
	case 1:
		r.Observe(threadID, found[0])
		return found[0], nil
	default:
		return "", fmt.Errorf("thread %s claimed by %d providers: %w", threadID, len(found), schema.ErrThreadAmbiguous)
	}
}
