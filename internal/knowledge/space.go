package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// entryCols is the standard SELECT column list for scanEntries.
const entryCols = `id, seq, name, content, metadata, embedding_dim, superseded, created_at`

// Space is one knowledge space: a content store and vector index over a
// single table.
//
// Space is safe for concurrent use by multiple goroutines. Writers only
// append or retire-by-name; no writer mutates another writer's rows.
type Space struct {
	db       querier
	table    string
	embedder ai.Embedder
	dim      int
	logger   *slog.Logger

	// degraded counts searches that fell back to keyword-only ranking.
	degraded atomic.Int64
}

// NewSpace creates a Space over one of the two known tables.
func NewSpace(db querier, table string, embedder ai.Embedder, dim int, logger *slog.Logger) (*Space, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table != SpaceKnowledge && table != SpaceLearnings {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpace, table)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dim < 1 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Space{
		db:       db,
		table:    table,
		embedder: embedder,
		dim:      dim,
		logger:   logger.With("space", table),
	}, nil
}

// Name returns the space's table name.
func (s *Space) Name() string { return s.table }

// DegradedSearches returns how many Search calls fell back to
// keyword-only ranking since the Space was created.
func (s *Space) DegradedSearches() int64 { return s.degraded.Load() }

// Add appends an entry to the space. The content is embedded with the
// configured embedder; when embedding fails, the entry is still written
// with dimension 0 so the content is never lost, and the failure is
// logged. Dimension-0 rows are invisible to semantic ranking.
//
// Add never updates an existing row. Saving the same name twice yields
// two live rows unless Retire was called in between.
func (s *Space) Add(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.Name) == "" {
		return Entry{}, fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Content) == "" {
		return Entry{}, fmt.Errorf("%w: content is required", ErrInvalidEntry)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}

	var embedding *pgvector.Vector
	vec, err := embedText(ctx, s.embedder, e.Content, s.dim)
	switch {
	case err != nil && ctx.Err() != nil:
		// Cancellation aborts before anything is written.
		return Entry{}, fmt.Errorf("embedding entry %q: %w", e.Name, err)
	case err != nil:
		s.logger.Warn("embedding failed, storing entry without vector",
			"name", e.Name, "error", err)
		e.Dimension = 0
	default:
		v := pgvector.NewVector(vec)
		embedding = &v
		e.Dimension = len(vec)
	}

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling metadata: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (id, name, content, metadata, embedding, embedding_dim)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at`, s.table)

	row := s.db.QueryRow(ctx, insertSQL,
		e.ID, e.Name, e.Content, metadataJSON, embedding, e.Dimension)
	if err := row.Scan(&e.Seq, &e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("inserting entry %q: %w", e.Name, err)
	}

	s.logger.Debug("added entry",
		"id", e.ID, "name", e.Name, "dimension", e.Dimension)
	return e, nil
}

// GetByID fetches a single entry, superseded or not.
func (s *Space) GetByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	getSQL := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, entryCols, s.table)

	e, err := scanEntry(s.db.QueryRow(ctx, getSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("fetching entry %s: %w", id, err)
	}
	return e, nil
}

// Retire marks every live entry with the given name as superseded.
// Rows are never deleted; retired rows drop out of ranking only.
// Returns the number of rows retired.
func (s *Space) Retire(ctx context.Context, name string) (int64, error) {
	retireSQL := fmt.Sprintf(
		`UPDATE %s SET superseded = TRUE WHERE name = $1 AND NOT superseded`, s.table)

	tag, err := s.db.Exec(ctx, retireSQL, name)
	if err != nil {
		return 0, fmt.Errorf("retiring entries named %q: %w", name, err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("retired entries", "name", name, "count", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of live (non-superseded) entries.
func (s *Space) Count(ctx context.Context) (int64, error) {
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NOT superseded`, s.table)

	var n int64
	if err := s.db.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// countValidEmbeddings returns live entries with a usable embedding.
func (s *Space) countValidEmbeddings(ctx context.Context) (int64, error) {
	countSQL := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE NOT superseded AND embedding_dim > 0`, s.table)

	var n int64
	if err := s.db.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting valid embeddings: %w", err)
	}
	return n, nil
}

// Search runs hybrid retrieval and returns at most k fused results.
//
// Semantic and keyword candidate lists are each capped at 2k to give the
// fusion something to work with. An empty corpus yields an empty slice,
// never an error. Embedding trouble degrades to keyword-only ranking;
// see the package documentation.
func (s *Space) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" || k < 1 {
		return nil, nil
	}
	limit := k * 2

	var (
		semantic []Result
		degraded bool
	)

	vec, err := embedText(ctx, s.embedder, query, s.dim)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		degraded = true
		s.logger.Warn("retrieval degraded: query embedding failed, keyword-only ranking",
			"error", err)
	} else {
		semantic, err = s.semanticSearch(ctx, vec, limit)
		if err != nil {
			return nil, err
		}
		if len(semantic) == 0 {
			valid, countErr := s.countValidEmbeddings(ctx)
			if countErr != nil {
				return nil, countErr
			}
			if valid == 0 {
				degraded = true
				s.logger.Warn("retrieval degraded: no valid embeddings in space, keyword-only ranking")
			}
		}
	}

	keyword, err := s.keywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if degraded {
		s.degraded.Add(1)
	}

	fused := fuse(semantic, keyword)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

// semanticSearch ranks live entries by cosine distance to vec.
// Rows with a failed embedding (dimension 0) are excluded by filter,
// never by accident.
func (s *Space) semanticSearch(ctx context.Context, vec []float32, limit int) ([]Result, error) {
	searchSQL := fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE NOT superseded AND embedding_dim > 0
		ORDER BY embedding <=> $1
		LIMIT $2`, entryCols, s.table)

	qv := pgvector.NewVector(vec)
	rows, err := s.db.Query(ctx, searchSQL, qv, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			e   Entry
			sim float64
		)
		if err := scanEntryFields(rows, &e, &sim); err != nil {
			return nil, fmt.Errorf("scanning semantic result: %w", err)
		}
		results = append(results, Result{Entry: e, Semantic: true, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic search rows: %w", err)
	}
	return results, nil
}

// keywordSearch ranks live entries by full-text rank over name + content.
func (s *Space) keywordSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	searchSQL := fmt.Sprintf(`SELECT %s,
			ts_rank_cd(to_tsvector('english', name || ' ' || content),
			           plainto_tsquery('english', $1)) AS rank
		FROM %s
		WHERE NOT superseded
		  AND to_tsvector('english', name || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, seq ASC
		LIMIT $2`, entryCols, s.table)

	rows, err := s.db.Query(ctx, searchSQL, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			e    Entry
			rank float64
		)
		if err := scanEntryFields(rows, &e, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword result: %w", err)
		}
		results = append(results, Result{Entry: e, Keyword: true, KeywordScore: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search rows: %w", err)
	}
	return results, nil
}

// scanEntry scans the entryCols column list from a single row.
func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e            Entry
		metadataJSON []byte
		createdAt    time.Time
	)
	if err := row.Scan(&e.ID, &e.Seq, &e.Name, &e.Content, &metadataJSON,
		&e.Dimension, &e.Superseded, &createdAt); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = createdAt
	if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
		e.Metadata = map[string]string{}
	}
	return e, nil
}

// scanEntryFields scans entryCols plus one trailing score column.
func scanEntryFields(rows pgx.Rows, e *Entry, score *float64) error {
	var metadataJSON []byte
	if err := rows.Scan(&e.ID, &e.Seq, &e.Name, &e.Content, &metadataJSON,
		&e.Dimension, &e.Superseded, &e.CreatedAt, score); err != nil {
		return err
	}
	if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
		e.Metadata = map[string]string{}
	}
	return nil
}
