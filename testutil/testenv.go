// Package testutil provides shared environment helpers for E2E tests. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvAllowedRadarr names the Radarr URL E2E tests may write to.
const EnvAllowedRadarr = "WATCHSYNC_ALLOWED_TEST_RADARR"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// MissingEnv returns the names in keys that are unset.
func MissingEnv(keys ...string) []string {
	var missing []string

	for _, k := range keys {
		if os.Getenv(k) == "" {
			missing = append(missing, k)
		}
	}

	return missing
}

// WritesAllowed reports whether radarrURL is the instance named by
// WATCHSYNC_ALLOWED_TEST_RADARR. Tests that apply tag changes must check it
// so a production Radarr is never modified.
func WritesAllowed(radarrURL string) bool {
	allowed := strings.TrimRight(os.Getenv(EnvAllowedRadarr), "/")

	return allowed != "" && allowed == strings.TrimRight(radarrURL, "/")
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// Fatalf prints a message and exits. For TestMain, where t is unavailable.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
