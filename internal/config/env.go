package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variable names for overrides. The unprefixed names are the
// ones container deployments already set (PLEX_SERVERS, RADARR_URL, ...).
const (
	EnvConfig   = "WATCHSYNC_CONFIG"
	EnvLogLevel = "WATCHSYNC_LOG_LEVEL"

	EnvPlexServers   = "PLEX_SERVERS"
	EnvPlexLibraries = "PLEX_LIBRARY_NAMES"
	EnvRadarrURL     = "RADARR_URL"
	EnvRadarrAPIKey  = "RADARR_API_KEY"
	EnvDryRun        = "DRY_RUN"
)

// EnvOverrides holds values derived from environment variables. Zero values
// (empty strings, nil slices and pointers) mean "not set".
type EnvOverrides struct {
	ConfigPath   string
	LogLevel     string
	Servers      []ServerConfig
	Libraries    []string
	RadarrURL    string
	RadarrAPIKey string
	DryRun       *bool
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It fails only when PLEX_SERVERS is set but malformed.
func ReadEnvOverrides() (EnvOverrides, error) {
	env := EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		LogLevel:     os.Getenv(EnvLogLevel),
		RadarrURL:    os.Getenv(EnvRadarrURL),
		RadarrAPIKey: os.Getenv(EnvRadarrAPIKey),
	}

	if v := os.Getenv(EnvPlexServers); v != "" {
		servers, err := ParseServerList(v)
		if err != nil {
			return EnvOverrides{}, fmt.Errorf("%s: %w", EnvPlexServers, err)
		}

		env.Servers = servers
	}

	if v := os.Getenv(EnvPlexLibraries); v != "" {
		env.Libraries = splitList(v)
	}

	if v := os.Getenv(EnvDryRun); v != "" {
		dry := strings.EqualFold(strings.TrimSpace(v), "true")
		env.DryRun = &dry
	}

	return env, nil
}

// ParseServerList parses a comma-separated list of "<url>:<token>" pairs.
// The token is everything after the last colon, so URLs may carry a port:
// "http://10.0.0.5:32400:abc" is URL "http://10.0.0.5:32400", token "abc".
// Errors identify entries by position so tokens never reach the logs.
func ParseServerList(s string) ([]ServerConfig, error) {
	var servers []ServerConfig

	for n, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		i := strings.LastIndex(part, ":")
		if i <= 0 || i == len(part)-1 {
			return nil, fmt.Errorf("entry %d: expected <url>:<token>", n+1)
		}

		url, token := part[:i], part[i+1:]
		if strings.HasSuffix(url, ":") || strings.HasPrefix(token, "/") {
			return nil, fmt.Errorf("entry %d: missing token after URL", n+1)
		}

		servers = append(servers, ServerConfig{URL: url, Token: token})
	}

	if len(servers) == 0 {
		return nil, errors.New("no servers listed")
	}

	return servers, nil
}

func splitList(s string) []string {
	var out []string

	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}
