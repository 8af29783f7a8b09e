// Package sqltext extracts SQL from model output and pulls table
// references out of statements. Model responses are free text; the only
// SQL dash trusts is what it can extract from a fenced block or, failing
// that, the first SELECT statement in the text.
package sqltext

import (
	"regexp"
	"strings"
)

var (
	fencedRe = regexp.MustCompile("(?s)```sql\\s*\\n(.*?)\\n\\s*```")
	// The bare-text fallback must not fire on prose. "with" is an
	// ordinary English word, so the CTE form is only recognized as
	// WITH <ident> AS ( and never as the word alone.
	selectRe = regexp.MustCompile(`(?is)\b(?:SELECT\b|WITH\s+(?:RECURSIVE\s+)?[A-Za-z_][A-Za-z0-9_]*\s+AS\s*\()[\s\S]*?(?:;|$)`)
	tableRe  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	orderRe  = regexp.MustCompile(`(?i)\border\s+by\b`)
)

// Extract returns the SQL statement contained in text, or "" when none
// is found. A fenced ```sql block wins; otherwise the first SELECT or
// WITH ... AS ( statement is taken up to a semicolon or end of text.
func Extract(text string) string {
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), ";"))
	}
	if m := selectRe.FindString(text); m != "" {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m), ";"))
	}
	return ""
}

// Tables returns the distinct table names referenced by FROM and JOIN
// clauses, in order of first appearance. Schema qualifiers are kept;
// subquery aliases are naturally skipped because a parenthesis follows
// FROM instead of an identifier.
func Tables(query string) []string {
	seen := make(map[string]struct{})
	var tables []string
	for _, m := range tableRe.FindAllStringSubmatch(query, -1) {
		name := strings.ToLower(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// HasOrderBy reports whether the statement orders its result at the
// top level. An ORDER BY inside a subquery or CTE body does not order
// the final result and does not count. Used by golden comparison:
// ordered goldens compare row-for-row, unordered ones as multisets.
func HasOrderBy(query string) bool {
	var top strings.Builder
	depth := 0
	for _, r := range query {
		switch r {
		case '(':
			if depth == 0 {
				top.WriteByte(' ')
			}
			depth++
		case ')':
			if depth > 0 {
				depth--
				if depth == 0 {
					top.WriteByte(' ')
				}
			}
		default:
			if depth == 0 {
				top.WriteRune(r)
			}
		}
	}
	return orderRe.MatchString(top.String())
}
