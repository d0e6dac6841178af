package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 99
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsMissingCodexSocket(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
providers:
  codex:
    enabled: true
    socket: ""
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "providers.codex.socket") {
		t.Fatalf("expected codex socket error, got %v", err)
	}
}

func TestLoadRejectsInvalidOpencodeBaseURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
providers:
  opencode:
    enabled: true
    base_url: 127.0.0.1:4096
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "providers.opencode.base_url") {
		t.Fatalf("expected opencode base_url error, got %v", err)
	}
}

func TestLoadRejectsAllProvidersDisabled(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
providers:
  codex:
    enabled: false
  opencode:
    enabled: false
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "at least one provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestLoadRejectsInvalidHTTPBaseURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
http:
  base_url: example.com
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "http.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
service:
  history_capacity: 500
providers:
  codex:
    enabled: false
  opencode:
    enabled: true
    base_url: http://10.0.0.5:4096
http:
  addr: ":8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.HistoryCapacity != 500 {
		t.Fatalf("history capacity = %d", cfg.Service.HistoryCapacity)
	}
	if cfg.Providers.Codex.Enabled {
		t.Fatalf("expected codex disabled")
	}
	if cfg.Providers.Opencode.BaseURL != "http://10.0.0.5:4096" {
		t.Fatalf("opencode base_url = %q", cfg.Providers.Opencode.BaseURL)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.SessionCookie != "agentdeck_session" {
		t.Fatalf("expected default cookie, got %q", cfg.HTTP.SessionCookie)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
