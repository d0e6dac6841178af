package core

import (
	"fmt"

	"pkt.systems/agentdeck/provider"
	"pkt.systems/agentdeck/schema"
)

// availability judges one feature against one adapter's current state.
// The judgment is computed fresh on every call; runtime state is read
// at the moment of asking, never cached. Reasons rank: a disabled
// provider reports disabled even when it would also be disconnected,
// and disconnected wins over unsupported.
func availability(adapter provider.Adapter, feature schema.FeatureID) schema.Availability {
	if !adapter.Enabled() {
		return schema.Unavailable(schema.ReasonProviderDisabled,
			fmt.Sprintf("provider %s is disabled in configuration", adapter.Provider()))
	}
	if !adapter.Connected() {
		detail := adapter.LastError()
		if detail == "" {
			detail = fmt.Sprintf("provider %s backend is unreachable", adapter.Provider())
		}
		return schema.Unavailable(schema.ReasonProviderDisconnected, detail)
	}
	if !adapter.Support().Supports(feature) {
		return schema.Unavailable(schema.ReasonUnsupportedByProvider,
			fmt.Sprintf("provider %s does not implement %s", adapter.Provider(), feature))
	}
	return schema.Available()
}

// featureMatrix judges every feature for one adapter.
func featureMatrix(adapter provider.Adapter) schema.FeatureMatrix {
	matrix := make(schema.FeatureMatrix, len(schema.AllFeatures))
	for _, feature := range schema.AllFeatures {
		matrix[feature] = availability(adapter, feature)
	}
	return matrix
}

// gate refuses a command whose feature is unavailable on the adapter.
// A refusal is a FeatureError carrying the same reason the matrix
// would report, so the two views cannot disagree.
func gate(adapter provider.Adapter, kind schema.CommandKind) error {
	feature := schema.CommandFeature[kind]
	judgment := availability(adapter, feature)
	if judgment.Available {
		return nil
	}
	return &schema.FeatureError{
		Provider: adapter.Provider(),
		Feature:  feature,
		Reason:   judgment.Reason,
		Message:  judgment.Detail,
	}
}
