package prompt

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// FoldTagName returns the comparison key for a tag name.
// Matching is case-insensitive and ignores surrounding whitespace.
func FoldTagName(name string) string {
	return folder.String(strings.TrimSpace(name))
}

// SameTag reports whether a and b name the same tag.
func SameTag(a, b string) bool {
	return FoldTagName(a) == FoldTagName(b)
}

// HasTag reports whether tags contains name (case-insensitive).
func HasTag(tags []string, name string) bool {
	key := FoldTagName(name)
	for _, t := range tags {
		if FoldTagName(t) == key {
			return true
		}
	}
	return false
}

// RemoveTag returns tags without any entry matching name.
// The relative order of the remaining entries is preserved.
// removed is false when nothing matched.
func RemoveTag(tags []string, name string) (out []string, removed bool) {
	key := FoldTagName(name)
	out = make([]string, 0, len(tags))
	for _, t := range tags {
		if FoldTagName(t) == key {
			removed = true
			continue
		}
		out = append(out, t)
	}
	return out, removed
}

// DedupeTags trims names, drops empties, and removes case-insensitive
// duplicates. The first spelling of each name wins and order is kept.
func DedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := FoldTagName(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
