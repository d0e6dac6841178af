package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Service       ServiceConfig   `mapstructure:"service" yaml:"service"`
	Providers     ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Auth          AuthConfig      `mapstructure:"auth" yaml:"auth"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServiceConfig controls core service behavior.
type ServiceConfig struct {
	HistoryCapacity int    `mapstructure:"history_capacity" yaml:"history_capacity"`
	RefreshDelayMS  int    `mapstructure:"refresh_delay_ms" yaml:"refresh_delay_ms"`
	TraceDir        string `mapstructure:"trace_dir" yaml:"trace_dir"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr             string `mapstructure:"addr" yaml:"addr"`
	SessionCookie    string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours  int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	BasePath         string `mapstructure:"base_path" yaml:"base_path"`
	EventHistorySize int    `mapstructure:"event_history_size" yaml:"event_history_size"`
	KeepaliveSeconds int    `mapstructure:"keepalive_seconds" yaml:"keepalive_seconds"`
}

// ProvidersConfig configures the agent backends.
type ProvidersConfig struct {
	Codex    CodexConfig    `mapstructure:"codex" yaml:"codex"`
	Opencode OpencodeConfig `mapstructure:"opencode" yaml:"opencode"`
}

// CodexConfig configures the socket-based codex backend.
type CodexConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Socket  string `mapstructure:"socket" yaml:"socket"`
}

// OpencodeConfig configures the HTTP-based opencode backend.
type OpencodeConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// AuthConfig configures auth storage and seed users. An empty UserFile
// disables session auth entirely.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".agentdeck", "state"),
		Service: ServiceConfig{
			HistoryCapacity: 2000,
			RefreshDelayMS:  250,
			TraceDir:        filepath.Join(home, ".agentdeck", "traces"),
		},
		Providers: ProvidersConfig{
			Codex: CodexConfig{
				Enabled: true,
				Socket:  filepath.Join(home, ".agentdeck", "codex.sock"),
			},
			Opencode: OpencodeConfig{
				Enabled:        true,
				BaseURL:        "http://127.0.0.1:4096",
				TimeoutSeconds: 30,
			},
		},
		HTTP: HTTPConfig{
			Addr:             ":27440",
			SessionCookie:    "agentdeck_session",
			SessionTTLHours:  720,
			BaseURL:          "",
			BasePath:         "",
			EventHistorySize: 1000,
			KeepaliveSeconds: 25,
		},
		Auth: AuthConfig{
			UserFile:  "",
			SeedUsers: nil,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentdeck", "config.yaml"), nil
}
