package config

// Config is the root configuration structure.
type Config struct {
	Spotify  SpotifyConfig  `toml:"spotify" json:"spotify"`
	Local    LocalConfig    `toml:"local" json:"local"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Renderer RendererConfig `toml:"renderer" json:"renderer"`
	Tail     TailConfig     `toml:"tail" json:"tail"`
	TUI      TUIConfig      `toml:"tui" json:"tui"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// SpotifyConfig holds Spotify API settings.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id" json:"client_id"`
	RedirectURI  string   `toml:"redirect_uri" json:"redirect_uri" validate:"required"`
	Scopes       []string `toml:"scopes" json:"scopes"`
	PollInterval int      `toml:"poll_interval" json:"poll_interval" validate:"gte=100"`
}

// LocalConfig holds settings for the local mpv source.
type LocalConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled"`
	MPVSocket  string `toml:"mpv_socket" json:"mpv_socket"`
	MPVPath    string `toml:"mpv_path" json:"mpv_path"`
	SampleRate int    `toml:"sample_rate" json:"sample_rate" validate:"gte=1,lte=240"`
}

// StorageConfig selects where tokens and local state live.
type StorageConfig struct {
	Backend   string `toml:"backend" json:"backend" validate:"oneof=keyring file memory"`
	TokenFile string `toml:"token_file" json:"token_file"`
	DataDir   string `toml:"data_dir" json:"data_dir"`
}

// ServerConfig holds the local HTTP server address.
type ServerConfig struct {
	Host string `toml:"host" json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `toml:"port" json:"port"`
}

// RendererConfig holds lyrics renderer settings.
type RendererConfig struct {
	ComponentURL string `toml:"component_url" json:"component_url" validate:"omitempty,url"`
}

// TailConfig holds settings for tail/follow mode.
type TailConfig struct {
	Interval int `toml:"interval" json:"interval"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme string `toml:"theme" json:"theme"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level" json:"level"`
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
}
