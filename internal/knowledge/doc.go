// Package knowledge implements dash's two append-only knowledge spaces
// and their hybrid retrieval.
//
// A Space pairs a content store with a vector index over the same rows,
// backed by PostgreSQL + pgvector. Dash runs exactly two spaces:
//
//   - "knowledge": curated table metadata, business rules, and validated
//     query patterns, loaded from files and extended at runtime by
//     confirmed queries.
//   - "learnings": facts dash discovered the hard way (type gotchas,
//     date-format quirks, user corrections), written by the recovery
//     loop and never curated.
//
// Both spaces behave identically; they are the same parameterized Space
// type instantiated against two tables that never share rows.
//
// # Hybrid search
//
// Search fuses two rankings over the live (non-superseded) rows:
//
//   - semantic: cosine distance between the query embedding and stored
//     embeddings, skipping rows whose embedding failed (dimension 0)
//   - keyword: PostgreSQL full-text rank over name + content
//
// Fusion is rank-based (reciprocal rank, k=60): entries present in both
// rankings rise above entries present in only one; remaining ties break
// on keyword score, then on insertion order. Scores from the two
// rankings are never compared directly.
//
// When the query embedding fails, or a space holds no valid embeddings
// at all, Search degrades to keyword-only ranking. Degradation is
// logged per call and counted (DegradedSearches) rather than surfaced
// as an error: a weaker answer beats no answer.
//
// # Append-only contract
//
// Entries are never updated or deleted. Reloading curated content under
// an existing name retires the old rows (superseded flag) so ranking
// ignores them, but the rows remain. A failed embedding is recorded as
// dimension 0 and is never a valid semantic hit.
package knowledge
