package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestCurrentStripsDirtySuffix(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected clean version, got %q", got)
	}
}

func TestPseudoVersion(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
		},
	}
	got := pseudoVersion(info)
	if want := "v0.0.0-20250102030405-1234567890ab"; got != want {
		t.Fatalf("pseudoVersion = %q, want %q", got, want)
	}
	if pseudoVersion(nil) != "" {
		t.Fatalf("expected empty version for nil build info")
	}
	if pseudoVersion(&debug.BuildInfo{}) != "" {
		t.Fatalf("expected empty version without vcs settings")
	}
}

func TestModuleFallsBackToDefault(t *testing.T) {
	if !strings.HasPrefix(Module(), "pkt.systems/") {
		t.Fatalf("unexpected module path %q", Module())
	}
}
