package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: $VERSE_CONFIG, $XDG_CONFIG_HOME/verse/config.toml, ~/.config/verse/config.toml
func Load() (*Config, error) {
	return LoadFrom(Path(""))
}

// LoadFrom reads configuration from a specific file path. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	// A .env file in the working directory is optional and never overrides
	// variables already set.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Path returns the config file to use. explicit wins when set.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("VERSE_CONFIG"); v != "" {
		return v
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "verse", "config.toml")
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Spotify
	if v := os.Getenv("VERSE_SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := os.Getenv("VERSE_SPOTIFY_REDIRECT_URI"); v != "" {
		cfg.Spotify.RedirectURI = v
	}
	if v := os.Getenv("VERSE_SPOTIFY_SCOPES"); v != "" {
		cfg.Spotify.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v := os.Getenv("VERSE_SPOTIFY_POLL_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Spotify.PollInterval = i
		}
	}

	// Local
	if v := os.Getenv("VERSE_LOCAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Local.Enabled = b
		}
	}
	if v := os.Getenv("VERSE_LOCAL_MPV_SOCKET"); v != "" {
		cfg.Local.MPVSocket = v
	}
	if v := os.Getenv("VERSE_LOCAL_MPV_PATH"); v != "" {
		cfg.Local.MPVPath = v
	}
	if v := os.Getenv("VERSE_LOCAL_SAMPLE_RATE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Local.SampleRate = i
		}
	}

	// Storage
	if v := os.Getenv("VERSE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("VERSE_STORAGE_TOKEN_FILE"); v != "" {
		cfg.Storage.TokenFile = v
	}
	if v := os.Getenv("VERSE_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	// Server
	if v := os.Getenv("VERSE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("VERSE_SERVER_PORT"); v != "" {
		if i, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Server.Port = uint16(i)
		}
	}

	// Renderer
	if v := os.Getenv("VERSE_RENDERER_COMPONENT_URL"); v != "" {
		cfg.Renderer.ComponentURL = v
	}

	// Log
	if v := os.Getenv("VERSE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VERSE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// Save writes cfg to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}
