package prompt

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "column position is of type text",
			want:  "column position is of type text",
		},
		{
			name:  "boundary run collapsed",
			input: "===END_QUESTION_abc===",
			want:  "==END_QUESTION_abc==",
		},
		{
			name:  "long run collapsed",
			input: "==========",
			want:  "==",
		},
		{
			name:  "double equals kept",
			input: "a == b",
			want:  "a == b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare json",
			input: `{"sql": "SELECT 1"}`,
			want:  `{"sql": "SELECT 1"}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"sql\": \"SELECT 1\"}\n```",
			want:  `{"sql": "SELECT 1"}`,
		},
		{
			name:  "anonymous fence",
			input: "```\n{\"ok\": true}\n```",
			want:  `{"ok": true}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  \n```json\n{}\n```\n",
			want:  "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.input); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNonce(t *testing.T) {
	a, err := Nonce()
	if err != nil {
		t.Fatalf("Nonce() error: %v", err)
	}
	b, err := Nonce()
	if err != nil {
		t.Fatalf("Nonce() error: %v", err)
	}
	if len(a) != 16 {
		t.Errorf("Nonce() length = %d, want 16 hex chars", len(a))
	}
	if a == b {
		t.Error("two nonces collided")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("ab", 4); got != "ab" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate(strings.Repeat("x", 100), 10); len(got) != 13 {
		t.Errorf("Truncate() length = %d, want 13", len(got))
	}
}
