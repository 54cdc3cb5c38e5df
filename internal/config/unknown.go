package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys per table. The empty table name holds the
// top-level keys and table names themselves.
var knownKeys = map[string][]string{
	"":        {"server", "libraries", "radarr", "sync", "logging", "network"},
	"server":  {"url", "token", "name"},
	"radarr":  {"url", "api_key"},
	"sync":    {"dry_run", "tag_prefix", "id_namespace", "index_workers", "entry_workers"},
	"logging": {"log_level", "log_format"},
	"network": {"timeout", "user_agent", "requests_per_second", "breaker_failures"},
}

func init() {
	// Sorted for deterministic suggestions when two candidates tie.
	for _, keys := range knownKeys {
		sort.Strings(keys)
	}
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	table, field := "", key[0]
	if len(key) > 1 {
		table, field = key[0], key[len(key)-1]
	}

	known, ok := knownKeys[table]
	if !ok {
		table, field, known = "", key[0], knownKeys[""]
	}

	where := ""
	if table != "" {
		where = fmt.Sprintf(" in [%s]", table)
	}

	if suggestion := closestMatch(field, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q%s, did you mean %q?", field, where, suggestion)
	}

	return fmt.Errorf("unknown config key %q%s", field, where)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using two rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
