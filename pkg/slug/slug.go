// Package slug derives URL-safe identifiers from titles.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	nonWord    = regexp.MustCompile(`[^a-z0-9\s-]+`)
	whitespace = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-{2,}`)

	// Valid matches the canonical slug shape
	Valid = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Make derives a slug: lowercase, strip non-word characters, collapse
// whitespace runs to single hyphens. "Hello, World!" becomes "hello-world".
func Make(title string) string {
	s := strings.ToLower(title)
	s = nonWord.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	s = hyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ExistsFunc reports whether a candidate slug is already taken
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// MakeUnique derives a slug from the title and appends -1, -2, ... until
// the exists check clears.
func MakeUnique(ctx context.Context, title string, exists ExistsFunc) (string, error) {
	base := Make(title)
	if base == "" {
		return "", fmt.Errorf("title %q yields an empty slug", title)
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}
