// Package config implements TOML configuration loading, validation, and
// path resolution for watchsync. It supports a four-layer override chain
// (defaults -> config file -> environment -> CLI flags). The environment layer
// reads the unprefixed PLEX_* / RADARR_* / DRY_RUN variables, so a container
// configured purely through the environment needs no config file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Servers   []ServerConfig `toml:"server" validate:"dive"`
	Libraries []string       `toml:"libraries" validate:"dive,required"`
	Radarr    RadarrConfig   `toml:"radarr"`
	Sync      SyncConfig     `toml:"sync"`
	Logging   LoggingConfig  `toml:"logging"`
	Network   NetworkConfig  `toml:"network"`
}

// ServerConfig is one Plex Media Server endpoint. Name is optional and only
// used in logs until the server reports its own friendly name.
type ServerConfig struct {
	URL   string `toml:"url" validate:"required,http_url"`
	Token string `toml:"token" validate:"required"`
	Name  string `toml:"name"`
}

// RadarrConfig locates the Radarr instance whose tags are reconciled.
type RadarrConfig struct {
	URL    string `toml:"url" validate:"omitempty,http_url"`
	APIKey string `toml:"api_key"`
}

// SyncConfig controls reconciliation behavior.
type SyncConfig struct {
	DryRun       bool   `toml:"dry_run"`
	TagPrefix    string `toml:"tag_prefix" validate:"required,max=64"`
	IDNamespace  string `toml:"id_namespace"`
	IndexWorkers int    `toml:"index_workers" validate:"min=1,max=32"`
	EntryWorkers int    `toml:"entry_workers" validate:"min=1,max=32"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=auto text json"`
}

// NetworkConfig controls HTTP client behavior shared by the Plex and Radarr
// clients.
type NetworkConfig struct {
	Timeout           string  `toml:"timeout"`
	UserAgent         string  `toml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gte=0"`
	BreakerFailures   int     `toml:"breaker_failures" validate:"min=1,max=100"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value": --dry-run=false must be able to
// override DRY_RUN=true.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use env or default)
	DryRun     *bool   // --dry-run flag
	LogLevel   *string // derived from --verbose / --quiet
}
