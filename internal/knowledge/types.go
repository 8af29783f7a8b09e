package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Space table names. These are the only tables a Space may target.
const (
	// SpaceKnowledge holds curated content: table metadata, business
	// rules, validated query patterns.
	SpaceKnowledge = "dash_knowledge"

	// SpaceLearnings holds discovered content written by the recovery
	// loop and user corrections.
	SpaceLearnings = "dash_learnings"
)

var (
	// ErrUnknownSpace indicates a table name outside the two known spaces.
	ErrUnknownSpace = errors.New("unknown knowledge space")

	// ErrEntryNotFound indicates a lookup for an id that does not exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrInvalidEntry indicates an entry missing required fields.
	ErrInvalidEntry = errors.New("invalid entry")
)

// Entry is one immutable row in a knowledge space.
//
// Entries are append-only: supersession adds a new row under the same
// Name and retires the old one, it never rewrites it.
type Entry struct {
	ID       uuid.UUID
	Name     string
	Content  string
	Metadata map[string]string

	// Dimension is the stored embedding's length. 0 marks a failed
	// embedding; such rows never appear in semantic rankings.
	Dimension int

	// Seq is the space-scoped insertion number, used as the final
	// ranking tie-break.
	Seq int64

	Superseded bool
	CreatedAt  time.Time
}

// Result is a single hybrid-search hit.
type Result struct {
	Entry Entry

	// Score is the fused reciprocal-rank score. Comparable only within
	// one Search call.
	Score float64

	// Semantic and Keyword report which rankings contained the entry.
	Semantic bool
	Keyword  bool

	// KeywordScore is the full-text rank when Keyword is true.
	KeywordScore float64

	// Similarity is the cosine similarity when Semantic is true.
	Similarity float64
}
