// Package tags canonicalizes user-entered tag strings.
package tags

import (
	"strings"
	"unicode"
)

// Normalize returns tags as a comma-separated list without empty entries or
// duplicates, in first-seen order. Commas, fullwidth commas (U+FF0C) and any
// whitespace separate tags on input.
func Normalize(s string) string {
	fields := strings.FieldsFunc(s, isSeparator)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return strings.Join(out, ",")
}

// Split breaks a stored tag string into its lowercased entries.
func Split(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, strings.ToLower(t))
	}
	return out
}

func isSeparator(r rune) bool {
	return r == ',' || r == '，' || unicode.IsSpace(r)
}
