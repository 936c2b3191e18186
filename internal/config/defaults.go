package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultRedirectURI  = "verse://callback"
	DefaultPollInterval = 1000
	DefaultSampleRate   = 60
	DefaultMPVPath      = "mpv"
	DefaultServerHost   = "127.0.0.1"
	DefaultServerPort   = 7878
	DefaultComponentURL = "https://cdn.jsdelivr.net/npm/@uimaxbai/am-lyrics/dist/src/am-lyrics.min.js"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURI:  DefaultRedirectURI,
			PollInterval: DefaultPollInterval,
		},
		Local: LocalConfig{
			Enabled:    true,
			MPVSocket:  defaultMPVSocket(),
			MPVPath:    DefaultMPVPath,
			SampleRate: DefaultSampleRate,
		},
		Storage: StorageConfig{
			Backend: "keyring",
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Renderer: RendererConfig{
			ComponentURL: DefaultComponentURL,
		},
		Tail: TailConfig{
			Interval: 1000,
		},
		TUI: TUIConfig{
			Theme: "auto",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Spotify
	if c.Spotify.RedirectURI == "" {
		c.Spotify.RedirectURI = d.Spotify.RedirectURI
	}
	if c.Spotify.PollInterval == 0 {
		c.Spotify.PollInterval = d.Spotify.PollInterval
	}

	// Local
	if c.Local.MPVSocket == "" {
		c.Local.MPVSocket = d.Local.MPVSocket
	}
	if c.Local.SampleRate == 0 {
		c.Local.SampleRate = d.Local.SampleRate
	}

	// Storage
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = d.Storage.DataDir
	}
	if c.Storage.Backend == "file" && c.Storage.TokenFile == "" {
		c.Storage.TokenFile = filepath.Join(c.Storage.DataDir, "secrets.json")
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}

	// Renderer
	if c.Renderer.ComponentURL == "" {
		c.Renderer.ComponentURL = d.Renderer.ComponentURL
	}

	// Tail
	if c.Tail.Interval == 0 {
		c.Tail.Interval = d.Tail.Interval
	}

	// TUI
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "verse")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".verse"
	}
	return filepath.Join(home, ".local", "share", "verse")
}

func defaultMPVSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "verse-mpv.sock")
	}
	return filepath.Join(os.TempDir(), "verse-mpv.sock")
}
