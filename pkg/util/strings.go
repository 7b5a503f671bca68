package util

import (
	"strings"
)

// NormalizeTicker trims and upper-cases a symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// UniqueTickers normalizes symbols, dropping blanks and repeats. Order is kept.
func UniqueTickers(in ...string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormalizeTicker(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
