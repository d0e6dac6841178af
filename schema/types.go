// Package schema defines the unified vocabulary shared by every surface of
// agentdeck: provider identifiers, feature identifiers, the thread/turn/item
// entity model, the command/result/event unions, and the validation helpers
// that guard every payload crossing the process boundary.
package schema

// ProviderID identifies a coding-assistant backend.
type ProviderID string

const (
	// ProviderCodex is the IPC/socket-based backend.
	ProviderCodex ProviderID = "codex"
	// ProviderOpencode is the HTTP/event-stream backend.
	ProviderOpencode ProviderID = "opencode"
)

// AllProviders lists every known provider identifier.
var AllProviders = []ProviderID{ProviderCodex, ProviderOpencode}

// Valid reports whether the provider id is one of the known backends.
func (p ProviderID) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// ThreadID identifies a persistent conversation with a provider.
type ThreadID string

// TurnID identifies one request/response cycle within a thread.
type TurnID string

// ItemID identifies one typed unit of conversation content.
type ItemID string

// ModelID identifies an LLM model offered by a provider.
type ModelID string

// ClientID identifies the owner of a thread's control state. Callers echo it
// back to detect whether their view agrees with the backend's authoritative
// holder.
type ClientID string
