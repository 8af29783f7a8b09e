package knowledge

import (
	"fmt"
	"slices"
	"strings"
)

// Metadata keys shared by all content kinds.
const (
	// MetaKind tags an entry with its content kind.
	MetaKind = "kind"

	KindTableMetadata = "table_metadata"
	KindBusinessRule  = "business_rule"
	KindQueryPattern  = "query_pattern"
	KindLearning      = "learning"
)

// Column describes one column of a documented table.
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// TableMetadata is curated documentation for one table in the target
// database: columns, declared types, and free-text data-quality notes.
type TableMetadata struct {
	Table   string   `yaml:"table"`
	Columns []Column `yaml:"columns"`
	Notes   string   `yaml:"notes"`
}

// EntryName returns the space-scoped name for this table's entry.
func (t TableMetadata) EntryName() string {
	return "table_" + strings.ToLower(t.Table)
}

// Render produces the entry content indexed for retrieval.
func (t TableMetadata) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", t.Table)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteByte('\n')
	}
	if t.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", t.Notes)
	}
	return b.String()
}

// Metadata returns the structured metadata stored with the entry.
func (t TableMetadata) Metadata() map[string]string {
	return map[string]string{MetaKind: KindTableMetadata, "table": t.Table}
}

// Gotcha is a known issue with a named metric and how to work around it.
type Gotcha struct {
	Issue    string `yaml:"issue"`
	Solution string `yaml:"solution"`
}

// BusinessRule is a curated metric definition, optionally with a
// calculation formula and known gotchas.
type BusinessRule struct {
	Name       string   `yaml:"name"`
	Definition string   `yaml:"definition"`
	Formula    string   `yaml:"formula"`
	Gotchas    []Gotcha `yaml:"gotchas"`
}

// EntryName returns the space-scoped name for this rule's entry.
func (r BusinessRule) EntryName() string {
	return "rule_" + slugify(r.Name)
}

// Render produces the entry content indexed for retrieval.
func (r BusinessRule) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business rule: %s\n", r.Name)
	if r.Definition != "" {
		fmt.Fprintf(&b, "Definition: %s\n", r.Definition)
	}
	if r.Formula != "" {
		fmt.Fprintf(&b, "Formula: %s\n", r.Formula)
	}
	for _, g := range r.Gotchas {
		fmt.Fprintf(&b, "Gotcha: %s -> %s\n", g.Issue, g.Solution)
	}
	return b.String()
}

// Metadata returns the structured metadata stored with the entry.
func (r BusinessRule) Metadata() map[string]string {
	return map[string]string{MetaKind: KindBusinessRule, "rule": r.Name}
}

// QueryPattern is a validated natural-language-to-SQL pair, either
// curated or saved at runtime after a confirmed successful execution.
type QueryPattern struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	SQL         string `yaml:"sql"`
}

// EntryName returns the space-scoped name for this pattern's entry.
func (q QueryPattern) EntryName() string {
	return "query_" + slugify(q.Name)
}

// Render produces the entry content indexed for retrieval.
func (q QueryPattern) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query pattern: %s\n", q.Name)
	if q.Description != "" {
		fmt.Fprintf(&b, "%s\n", q.Description)
	}
	fmt.Fprintf(&b, "SQL:\n%s\n", strings.TrimSpace(q.SQL))
	return b.String()
}

// Metadata returns the structured metadata stored with the entry.
func (q QueryPattern) Metadata() map[string]string {
	return map[string]string{MetaKind: KindQueryPattern, "query": q.Name}
}

// LearningRecord is a discovered fact written to the learnings space,
// always the product of the recovery loop or an explicit user
// correction. Records are never mutated after a verified write; a later
// conflicting learning is a new entry and ranking prefers the freshest.
type LearningRecord struct {
	Title string
	Body  string
	Facts map[string]string
}

// EntryName returns the space-scoped name for this learning's entry.
func (l LearningRecord) EntryName() string {
	return slugify(l.Title)
}

// Render produces the entry content indexed for retrieval.
func (l LearningRecord) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Learning: %s\n", l.Title)
	fmt.Fprintf(&b, "%s\n", strings.TrimSpace(l.Body))
	for _, k := range sortedKeys(l.Facts) {
		fmt.Fprintf(&b, "%s: %s\n", k, l.Facts[k])
	}
	return b.String()
}

// Metadata returns the structured metadata stored with the entry.
// Structured facts ride along so they survive round trips without
// re-parsing the rendered content.
func (l LearningRecord) Metadata() map[string]string {
	md := map[string]string{MetaKind: KindLearning, "title": l.Title}
	for k, v := range l.Facts {
		md["fact_"+k] = v
	}
	return md
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// maxEntryNameLen caps generated entry names.
const maxEntryNameLen = 80

// slugify lowercases s and replaces whitespace runs with underscores,
// capped at maxEntryNameLen bytes.
func slugify(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	slug := strings.Join(fields, "_")
	if len(slug) > maxEntryNameLen {
		slug = slug[:maxEntryNameLen]
	}
	return slug
}
