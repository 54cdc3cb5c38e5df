package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as a TOML-like summary
// to w, with tokens and API keys redacted. This powers "config show".
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")
	ew.printf("libraries = [%s]\n\n", joinQuoted(cfg.Libraries))

	for i := range cfg.Servers {
		renderServer(ew, &cfg.Servers[i])
	}

	renderRadarrSection(ew, &cfg.Radarr)
	renderSyncSection(ew, &cfg.Sync)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderServer(ew *errWriter, s *ServerConfig) {
	ew.printf("[[server]]\n")
	ew.printf("  url   = %q\n", s.URL)
	ew.printf("  token = %q\n", redact(s.Token))

	if s.Name != "" {
		ew.printf("  name  = %q\n", s.Name)
	}

	ew.printf("\n")
}

func renderRadarrSection(ew *errWriter, r *RadarrConfig) {
	ew.printf("[radarr]\n")
	ew.printf("  url     = %q\n", r.URL)
	ew.printf("  api_key = %q\n", redact(r.APIKey))
	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("[sync]\n")
	ew.printf("  dry_run       = %t\n", s.DryRun)
	ew.printf("  tag_prefix    = %q\n", s.TagPrefix)
	ew.printf("  id_namespace  = %q\n", s.IDNamespace)
	ew.printf("  index_workers = %d\n", s.IndexWorkers)
	ew.printf("  entry_workers = %d\n", s.EntryWorkers)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  timeout             = %q\n", n.Timeout)
	ew.printf("  requests_per_second = %g\n", n.RequestsPerSecond)
	ew.printf("  breaker_failures    = %d\n", n.BreakerFailures)

	if n.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", n.UserAgent)
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}

	return redacted
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}

// Redacted returns a copy of cfg with tokens and API keys replaced, for
// machine-readable output.
func (c *Config) Redacted() *Config {
	out := *c
	out.Servers = make([]ServerConfig, len(c.Servers))

	for i, s := range c.Servers {
		s.Token = redact(s.Token)
		out.Servers[i] = s
	}

	out.Libraries = append([]string(nil), c.Libraries...)
	out.Radarr.APIKey = redact(c.Radarr.APIKey)

	return &out
}
