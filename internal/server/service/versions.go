package service

import (
	"regexp"
)

const (
	DefaultTopPerVersion = 5
	MinTopPerVersion     = 1
	MaxTopPerVersion     = 10
)

var versionSeparators = regexp.MustCompile(`[,;\s]+`)

// ParseVersions splits a version list on commas, semicolons and
// whitespace. Empty tokens and repeats are dropped; first-seen order is kept.
func ParseVersions(raw string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, v := range versionSeparators.Split(raw, -1) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ClampTop limits a requested per-version top size to [1, 10].
func ClampTop(n int) int {
	return max(MinTopPerVersion, min(n, MaxTopPerVersion))
}
