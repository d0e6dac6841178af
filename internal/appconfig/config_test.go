package appconfig

import "testing"

func TestDefaultConfigEnablesBothProviders(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if !cfg.Providers.Codex.Enabled || !cfg.Providers.Opencode.Enabled {
		t.Fatalf("expected both providers enabled by default: %+v", cfg.Providers)
	}
	if cfg.Auth.UserFile != "" {
		t.Fatalf("expected auth disabled by default, got user_file %q", cfg.Auth.UserFile)
	}
}
