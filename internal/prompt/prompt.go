// Package prompt holds the hygiene helpers shared by every model call:
// nonce-delimited section boundaries, delimiter sanitizing so untrusted
// text cannot forge a boundary, and code-fence stripping for JSON-only
// responses.
package prompt

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

// delimiterRe collapses runs of '=' that could forge a prompt boundary.
var delimiterRe = regexp.MustCompile(`={3,}`)

// Nonce returns a random hex token for delimiting prompt sections.
func Nonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Sanitize neutralizes delimiter runs in untrusted text before it is
// embedded in a nonce-delimited prompt section.
func Sanitize(s string) string {
	return delimiterRe.ReplaceAllString(s, "==")
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Truncate caps s at n bytes for log and error messages.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
