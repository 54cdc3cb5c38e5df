package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tonimelisma/watchsync/internal/extid"
)

const minTimeout = 1 * time.Second

// validate is the shared validator instance. It caches struct metadata and
// is safe for concurrent use.
var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report TOML key names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}

		return name
	})

	return v
})

// Validate checks all configuration values and returns every error found,
// joined, so users can fix all issues in one pass. The Radarr connection
// settings are only required by commands that write tags; see
// ValidateCatalog.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTags(cfg)...)
	errs = append(errs, validateRequired(cfg)...)
	errs = append(errs, validateServers(cfg.Servers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// validateTags runs the struct-tag rules and converts each failure into an
// error naming the TOML key path ("server[0].url").
func validateTags(cfg *Config) []error {
	err := validate().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []error{err}
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		errs = append(errs, fmt.Errorf("%s: %s", path, friendlyMessage(fe)))
	}

	return errs
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return fmt.Sprintf("must be an http(s) URL, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of %s; got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}

		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	default:
		return "is invalid"
	}
}

// ValidateCatalog checks the Radarr settings needed to read and write tags.
func ValidateCatalog(cfg *Config) error {
	var errs []error

	if cfg.Radarr.URL == "" {
		errs = append(errs, fmt.Errorf("radarr.url: is required (or %s)", EnvRadarrURL))
	}

	if cfg.Radarr.APIKey == "" {
		errs = append(errs, fmt.Errorf("radarr.api_key: is required (or %s)", EnvRadarrAPIKey))
	}

	return errors.Join(errs...)
}

// validateRequired checks settings that may come from the file or the
// environment, naming both sources in the message.
func validateRequired(cfg *Config) []error {
	var errs []error

	if len(cfg.Servers) == 0 {
		errs = append(errs, fmt.Errorf("server: at least one Plex server is required ([[server]] or %s)", EnvPlexServers))
	}

	if !extid.Namespace(cfg.Sync.IDNamespace).Valid() {
		errs = append(errs, fmt.Errorf("sync.id_namespace: must be one of %s, %s; got %q",
			extid.TMDB, extid.TVDB, cfg.Sync.IDNamespace))
	}

	return errs
}

func validateServers(servers []ServerConfig) []error {
	var errs []error

	seen := make(map[string]int, len(servers))

	for i := range servers {
		key := strings.TrimRight(strings.ToLower(servers[i].URL), "/")
		if first, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("server[%d].url: duplicates server[%d] (%s)", i, first, servers[i].URL))
			continue
		}

		seen[key] = i
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("network.timeout: invalid duration %q: %w", n.Timeout, err)}
	}

	if d < minTimeout {
		return []error{fmt.Errorf("network.timeout: must be >= %s, got %s", minTimeout, d)}
	}

	return nil
}

// TimeoutDuration returns the parsed network timeout. Only valid after
// Validate.
func (n *NetworkConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 0
	}

	return d
}
