package schema

// FeatureID names one capability a provider may or may not support. The set
// is closed: every command kind maps to exactly one feature id and vice
// versa, and every provider support table carries an entry for every feature.
type FeatureID string

const (
	// FeatureListThreads lists threads, paged and filterable.
	FeatureListThreads FeatureID = "listThreads"
	// FeatureCreateThread starts a new thread.
	FeatureCreateThread FeatureID = "createThread"
	// FeatureReadThread reads one thread, optionally without turns.
	FeatureReadThread FeatureID = "readThread"
	// FeatureSendMessage sends a user message into a thread.
	FeatureSendMessage FeatureID = "sendMessage"
	// FeatureInterrupt delivers advisory cancellation to the backend.
	FeatureInterrupt FeatureID = "interrupt"
	// FeatureListModels lists the provider's available models.
	FeatureListModels FeatureID = "listModels"
	// FeatureListCollaborationModes lists available collaboration modes.
	FeatureListCollaborationModes FeatureID = "listCollaborationModes"
	// FeatureSetCollaborationMode changes a thread's collaboration mode.
	FeatureSetCollaborationMode FeatureID = "setCollaborationMode"
	// FeatureSubmitUserInput answers a pending user-input request.
	FeatureSubmitUserInput FeatureID = "submitUserInput"
	// FeatureReadLiveState reads a thread's in-memory conversation state.
	FeatureReadLiveState FeatureID = "readLiveState"
	// FeatureReadStreamEvents reads the raw event backlog for a thread.
	FeatureReadStreamEvents FeatureID = "readStreamEvents"
	// FeatureListProjectDirectories lists known project directories.
	FeatureListProjectDirectories FeatureID = "listProjectDirectories"
)

// AllFeatures lists every feature identifier.
var AllFeatures = []FeatureID{
	FeatureListThreads,
	FeatureCreateThread,
	FeatureReadThread,
	FeatureSendMessage,
	FeatureInterrupt,
	FeatureListModels,
	FeatureListCollaborationModes,
	FeatureSetCollaborationMode,
	FeatureSubmitUserInput,
	FeatureReadLiveState,
	FeatureReadStreamEvents,
	FeatureListProjectDirectories,
}

// UnavailableReason explains why a feature cannot currently be invoked.
type UnavailableReason string

const (
	// ReasonUnsupportedByProvider marks a feature the provider never offers.
	ReasonUnsupportedByProvider UnavailableReason = "unsupportedByProvider"
	// ReasonProviderDisabled marks a provider switched off in configuration.
	ReasonProviderDisabled UnavailableReason = "providerDisabled"
	// ReasonProviderDisconnected marks a provider whose backend is unreachable.
	ReasonProviderDisconnected UnavailableReason = "providerDisconnected"
	// ReasonProviderNotReady marks a provider still starting up.
	ReasonProviderNotReady UnavailableReason = "providerNotReady"
	// ReasonRequiresOwnerClientID marks an operation needing an owner client id.
	ReasonRequiresOwnerClientID UnavailableReason = "requiresOwnerClientId"
)

// AllUnavailableReasons lists the fixed unavailability-reason taxonomy.
var AllUnavailableReasons = []UnavailableReason{
	ReasonUnsupportedByProvider,
	ReasonProviderDisabled,
	ReasonProviderDisconnected,
	ReasonProviderNotReady,
	ReasonRequiresOwnerClientID,
}

// Availability is a per-request judgment of whether a feature can be invoked.
// It is computed fresh for every command and never cached beyond it.
type Availability struct {
	Available bool              `json:"available"`
	Reason    UnavailableReason `json:"reason,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

// Available constructs an available judgment.
func Available() Availability {
	return Availability{Available: true}
}

// Unavailable constructs an unavailable judgment with a reason and optional
// human-readable detail.
func Unavailable(reason UnavailableReason, detail string) Availability {
	return Availability{Reason: reason, Detail: detail}
}

// FeatureMatrix maps every feature id to its current availability for one
// provider.
type FeatureMatrix map[FeatureID]Availability

// Support is a provider's static feature-support table. It is the single
// source of truth for "does this provider implement X"; adapters and the
// availability matrix both derive from it so the two cannot drift apart.
type Support map[FeatureID]bool

// Supports reports the table entry for a feature. Missing entries are
// treated as unsupported; the exhaustiveness tests forbid them.
func (s Support) Supports(feature FeatureID) bool {
	return s[feature]
}
