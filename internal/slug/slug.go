// Package slug derives URL-safe note identifiers from titles.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the longest slug Generate returns.
const MaxLength = 100

// Fallback is used as the base slug when a title has no usable characters.
const Fallback = "note"

var (
	// Anything that is not a word character, whitespace or a dash.
	disallowedRe = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	dashRunRe    = regexp.MustCompile(`-+`)
)

// Generate converts a note title into its base slug.
//
//	"Keto Basics"        → "keto-basics"
//	"  Protein: 101!  "  → "protein-101"
//	"low -- carb"        → "low-carb"
func Generate(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = disallowedRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = dashRunRe.ReplaceAllString(s, "-")
	if len(s) > MaxLength {
		s = s[:MaxLength]
	}
	return s
}

// ExistsFunc reports whether a slug is already taken.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Unique returns base if it is free, otherwise base-1, base-2, ... until exists
// reports false. An empty base is replaced with Fallback.
func Unique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	if base == "" {
		base = Fallback
	}
	candidate := base
	for n := 1; ; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
