// Package learning turns execution failures into durable, retrievable
// facts. The Persistor writes learnings with verify-after-write
// semantics; the Loop drives the bounded diagnose-fix state machine
// that produces them.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/koopa0/dash/internal/knowledge"
)

// learningStore is the slice of the learnings space the Persistor needs.
type learningStore interface {
	Add(ctx context.Context, e knowledge.Entry) (knowledge.Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (knowledge.Entry, error)
}

// PersistenceError reports a learning that could not be verified after
// the write retry. Callers must surface it, never swallow it: a
// learning that may not exist is worse than no learning, because
// downstream retrieval assumes verified entries are real.
type PersistenceError struct {
	Title    string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("learning %q not verified after %d attempts: %v",
		e.Title, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PersistedLearning is a learning whose write was read back with a
// valid embedding.
type PersistedLearning struct {
	Entry knowledge.Entry
}

// persistAttempts is the total write budget: the initial write plus one
// full retry.
const persistAttempts = 2

// Persistor writes learnings into the learnings space and verifies each
// write before reporting success.
//
// The storage layer reports success even when the embedding silently
// failed (the row lands with dimension 0), so a write is only believed
// after reading the entry back and checking its embedding dimension.
type Persistor struct {
	store  learningStore
	logger *slog.Logger
}

// NewPersistor creates a Persistor over the learnings space.
func NewPersistor(store learningStore, logger *slog.Logger) *Persistor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistor{store: store, logger: logger}
}

// Save writes a learning and verifies it is retrievable with a valid
// embedding. On verification failure the full write is retried once;
// a second failure returns *PersistenceError.
//
// Saving the same title and body twice produces two entries; the space
// is append-only and deduplication is a ranking concern, not a write
// constraint.
//
// Cancellation is honored only between attempts: once a write has
// started, its verify runs to completion so no write is left
// half-verified.
func (p *Persistor) Save(ctx context.Context, rec knowledge.LearningRecord) (*PersistedLearning, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", knowledge.ErrInvalidEntry)
	}
	if strings.TrimSpace(rec.Body) == "" {
		return nil, fmt.Errorf("%w: body is required", knowledge.ErrInvalidEntry)
	}

	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("saving learning %q: %w", rec.Title, err)
		}

		// The write-verify pair is atomic with respect to cancellation:
		// once Add begins, verification completes on an uncancelable
		// context.
		writeCtx := context.WithoutCancel(ctx)

		entry, err := p.store.Add(writeCtx, knowledge.Entry{
			Name:     rec.EntryName(),
			Content:  rec.Render(),
			Metadata: rec.Metadata(),
		})
		if err != nil {
			lastErr = err
			p.logger.Warn("learning write failed",
				"title", rec.Title, "attempt", attempt, "error", err)
			continue
		}

		verified, err := p.verify(writeCtx, entry.ID)
		if err == nil {
			p.logger.Info("learning saved and verified",
				"title", rec.Title, "id", verified.ID, "attempt", attempt)
			return &PersistedLearning{Entry: verified}, nil
		}
		lastErr = err
		p.logger.Warn("learning verification failed",
			"title", rec.Title, "attempt", attempt, "error", err)
	}

	return nil, &PersistenceError{Title: rec.Title, Attempts: persistAttempts, Err: lastErr}
}

// verify reads the entry back and checks it carries a usable embedding.
// A dimension-0 row means the embedding silently failed at write time;
// it would never surface in semantic retrieval, so it does not count as
// persisted.
func (p *Persistor) verify(ctx context.Context, id uuid.UUID) (knowledge.Entry, error) {
	entry, err := p.store.GetByID(ctx, id)
	if err != nil {
		return knowledge.Entry{}, fmt.Errorf("reading back learning: %w", err)
	}
	if entry.Dimension == 0 {
		return knowledge.Entry{}, fmt.Errorf("learning %s stored without valid embedding", id)
	}
	return entry, nil
}
