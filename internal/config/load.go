package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file and returns the resulting Config
// layered over the defaults. Unknown keys are fatal, with "did you mean?"
// suggestions. Validation happens in Resolve, once every layer is applied,
// because a file alone is allowed to leave required values to the
// environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with default values. A deployment configured purely
// through the environment needs no file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. The result
// is validated; every problem is reported at once.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// An explicitly named file must exist; the default one is optional.
	load := LoadOrDefault
	cfgPath := DefaultConfigPath()

	if env.ConfigPath != "" {
		cfgPath, load = env.ConfigPath, Load
	}

	if cli.ConfigPath != "" {
		cfgPath, load = cli.ConfigPath, Load
	}

	cfg, err := load(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if len(cfg.Libraries) == 0 {
		cfg.Libraries = []string{defaultLibrary}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.Servers != nil {
		cfg.Servers = slices.Clone(env.Servers)
	}

	if env.Libraries != nil {
		cfg.Libraries = slices.Clone(env.Libraries)
	}

	if env.RadarrURL != "" {
		cfg.Radarr.URL = env.RadarrURL
	}

	if env.RadarrAPIKey != "" {
		cfg.Radarr.APIKey = env.RadarrAPIKey
	}

	if env.DryRun != nil {
		cfg.Sync.DryRun = *env.DryRun
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.DryRun != nil {
		cfg.Sync.DryRun = *cli.DryRun
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}
}
