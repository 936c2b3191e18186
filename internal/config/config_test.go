package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[spotify]
client_id = "abc123"
poll_interval = 2000

[local]
mpv_socket = "/tmp/mpv.sock"

[server]
port = 9000

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Spotify.ClientID != "abc123" {
		t.Errorf("ClientID = %q", cfg.Spotify.ClientID)
	}
	if cfg.Spotify.PollInterval != 2000 {
		t.Errorf("PollInterval = %d", cfg.Spotify.PollInterval)
	}
	if cfg.Spotify.RedirectURI != DefaultRedirectURI {
		t.Errorf("RedirectURI = %q, want default", cfg.Spotify.RedirectURI)
	}
	if cfg.Local.MPVSocket != "/tmp/mpv.sock" {
		t.Errorf("MPVSocket = %q", cfg.Local.MPVSocket)
	}
	if cfg.Local.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want default", cfg.Local.SampleRate)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Host != DefaultServerHost {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadFromInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[spotify\nclient_id = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VERSE_SPOTIFY_CLIENT_ID", "from-env")
	t.Setenv("VERSE_SPOTIFY_SCOPES", "user-read-playback-state, streaming")
	t.Setenv("VERSE_LOCAL_ENABLED", "false")
	t.Setenv("VERSE_SERVER_PORT", "8123")
	t.Setenv("VERSE_STORAGE_BACKEND", "memory")
	t.Setenv("VERSE_LOG_FILE", "/tmp/verse.log")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Spotify.ClientID != "from-env" {
		t.Errorf("ClientID = %q", cfg.Spotify.ClientID)
	}
	if strings.Join(cfg.Spotify.Scopes, " ") != "user-read-playback-state streaming" {
		t.Errorf("Scopes = %v", cfg.Spotify.Scopes)
	}
	if cfg.Local.Enabled {
		t.Error("Local.Enabled = true, want false")
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Log.File != "/tmp/verse.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("VERSE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got := Path("/explicit.toml"); got != "/explicit.toml" {
		t.Errorf("Path(explicit) = %q", got)
	}
	if got := Path(""); got != "/xdg/verse/config.toml" {
		t.Errorf("Path() = %q", got)
	}

	t.Setenv("VERSE_CONFIG", "/env.toml")
	if got := Path(""); got != "/env.toml" {
		t.Errorf("Path() with VERSE_CONFIG = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"bad theme", func(c *Config) { c.TUI.Theme = "neon" }, "invalid theme"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "floppy" }, "Backend"},
		{"file backend without path", func(c *Config) {
			c.Storage.Backend = "file"
			c.Storage.TokenFile = ""
		}, "token_file required"},
		{"sample rate too high", func(c *Config) { c.Local.SampleRate = 1000 }, "SampleRate"},
		{"poll interval too low", func(c *Config) { c.Spotify.PollInterval = 10 }, "PollInterval"},
		{"bad host", func(c *Config) { c.Server.Host = "not a host!" }, "Host"},
		{"bad component url", func(c *Config) { c.Renderer.ComponentURL = "nope" }, "ComponentURL"},
		{"redirect without scheme", func(c *Config) { c.Spotify.RedirectURI = "callback" }, "scheme"},
		{"negative tail interval", func(c *Config) { c.Tail.Interval = -1 }, "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Spotify.ClientID = "saved"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Spotify.ClientID != "saved" {
		t.Errorf("ClientID = %q", loaded.Spotify.ClientID)
	}
}
