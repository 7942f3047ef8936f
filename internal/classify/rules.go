package classify

import (
	"fmt"

	"github.com/gobwas/glob"
)

// KindRules matches item kinds against glob patterns. Patterns use '/' as
// the separator, so "projectile/*" matches "projectile/arrow" but not
// "projectile/arrow/fire"; use "projectile/**" for that.
type KindRules struct {
	patterns []string
	globs    []glob.Glob
}

// CompileKindRules compiles patterns. An invalid pattern is an error.
func CompileKindRules(patterns []string) (*KindRules, error) {
	kr := &KindRules{
		patterns: append([]string(nil), patterns...),
		globs:    make([]glob.Glob, 0, len(patterns)),
	}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid kind pattern %q: %w", p, err)
		}
		kr.globs = append(kr.globs, g)
	}
	return kr, nil
}

// Match reports whether kind matches any pattern. The empty kind never
// matches.
func (kr *KindRules) Match(kind string) bool {
	if kr == nil || kind == "" {
		return false
	}
	for _, g := range kr.globs {
		if g.Match(kind) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (kr *KindRules) Patterns() []string {
	if kr == nil {
		return nil
	}
	return append([]string(nil), kr.patterns...)
}
