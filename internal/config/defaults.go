package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultLibrary         = "Movies"
	defaultTagPrefix       = "watched_by_"
	defaultIDNamespace     = "tmdb"
	defaultIndexWorkers    = 4
	defaultEntryWorkers    = 1
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultTimeout         = "30s"
	defaultRequestsPerSec  = 10
	defaultBreakerFailures = 5
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding, so unset fields retain defaults.
//
// Libraries is left empty: a file or env value replaces the list wholesale,
// and Resolve falls back to defaultLibrary when nothing set it.
func DefaultConfig() *Config {
	return &Config{
		Sync:    defaultSyncConfig(),
		Logging: defaultLoggingConfig(),
		Network: defaultNetworkConfig(),
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		TagPrefix:    defaultTagPrefix,
		IDNamespace:  defaultIDNamespace,
		IndexWorkers: defaultIndexWorkers,
		EntryWorkers: defaultEntryWorkers,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Timeout:           defaultTimeout,
		RequestsPerSecond: defaultRequestsPerSec,
		BreakerFailures:   defaultBreakerFailures,
	}
}
