package provider_test

import (
	"testing"

	"pkt.systems/agentdeck/provider/codex"
	"pkt.systems/agentdeck/provider/opencode"
	"pkt.systems/agentdeck/schema"
)

// Every provider must take an explicit stance on every feature. A
// missing entry would read as unsupported by accident instead of by
// decision.
func TestSupportTablesCoverAllFeatures(t *testing.T) {
	tables := map[schema.ProviderID]schema.Support{
		schema.ProviderCodex:    codex.Support(),
		schema.ProviderOpencode: opencode.Support(),
	}
	if len(tables) != len(schema.AllProviders) {
		t.Fatalf("have %d support tables, want one per provider (%d)", len(tables), len(schema.AllProviders))
	}
	for providerID, table := range tables {
		if len(table) != len(schema.AllFeatures) {
			t.Errorf("%s: table has %d entries, want %d", providerID, len(table), len(schema.AllFeatures))
		}
		for _, feature := range schema.AllFeatures {
			if _, ok := table[feature]; !ok {
				t.Errorf("%s: no entry for feature %s", providerID, feature)
			}
		}
	}
}

func TestCodexSupportsEverything(t *testing.T) {
	for feature, supported := range codex.Support() {
		if !supported {
			t.Errorf("codex table claims %s unsupported", feature)
		}
	}
}
