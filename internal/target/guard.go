package target

import (
	"fmt"
	"strings"
)

// forbiddenKeywords are statement types dash must never run against the
// target. The target is read-only from dash's point of view; even a
// well-meaning model gets no write path.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "truncate", "alter", "create",
	"grant", "revoke", "vacuum", "attach", "copy",
}

// CheckReadOnly rejects statements that are not plain SELECT or WITH
// queries, and SELECTs smuggling data-modifying keywords as standalone
// words. Matching is token-based so column names like "updated_at"
// pass. Keywords inside string literals still match; the guard prefers
// a false rejection over a write slipping through.
func CheckReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: empty statement", ErrForbiddenSQL)
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("%w: only SELECT and WITH statements are allowed", ErrForbiddenSQL)
	}

	for _, token := range tokenize(lower) {
		for _, kw := range forbiddenKeywords {
			if token == kw {
				return fmt.Errorf("%w: statement contains %q", ErrForbiddenSQL, kw)
			}
		}
	}

	// One statement at a time: trailing semicolons are fine, embedded
	// ones are not.
	if idx := strings.IndexByte(trimmed, ';'); idx >= 0 && idx != len(trimmed)-1 {
		return fmt.Errorf("%w: multiple statements", ErrForbiddenSQL)
	}

	return nil
}

// tokenize splits a lowered statement into identifier-ish tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return false
		default:
			return true
		}
	})
}
