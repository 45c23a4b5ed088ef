// Package strings provides string slice helpers for configuration lists.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element, drops empty ones and keeps the first occurrence of
// each value. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return DedupeBy(values, func(s string) string { return s })
}

// DedupeBy is DedupeAndTrim comparing elements by key while keeping the first spelling.
//
//	DedupeBy([]string{"0xAB", " 0xab "}, strings.ToLower)
//	// Returns: []string{"0xAB"}
func DedupeBy(values []string, key func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		k := key(trimmed)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
