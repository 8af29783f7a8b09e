package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// Searcher is the retrieval surface a space exposes to the rest of dash.
// *Space implements it; tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Result, error)
}

// System aggregates the two knowledge spaces. Retrieval for a question
// always hits both; writes target exactly one.
type System struct {
	Knowledge Searcher
	Learnings Searcher
	logger    *slog.Logger
}

// Grounding is the retrieved context for one question, in the stable
// shape the model call consumes.
type Grounding struct {
	Knowledge []Result
	Learnings []Result
}

// NewSystem creates both spaces over a shared connection pool.
func NewSystem(db querier, embedder ai.Embedder, dim int, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}

	curated, err := NewSpace(db, SpaceKnowledge, embedder, dim, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge space: %w", err)
	}
	learned, err := NewSpace(db, SpaceLearnings, embedder, dim, logger)
	if err != nil {
		return nil, fmt.Errorf("creating learnings space: %w", err)
	}

	return &System{Knowledge: curated, Learnings: learned, logger: logger}, nil
}

// SearchBoth retrieves top-k from both spaces concurrently. The two
// searches share no mutable state, so they run in parallel; a failure in
// one space does not discard the other's results: retrieval
// degradations are absorbed and logged, the system must still answer.
func (s *System) SearchBoth(ctx context.Context, query string, k int) (Grounding, error) {
	var (
		wg sync.WaitGroup
		g  Grounding

		knowledgeErr error
		learningsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		g.Knowledge, knowledgeErr = s.Knowledge.Search(ctx, query, k)
	}()
	go func() {
		defer wg.Done()
		g.Learnings, learningsErr = s.Learnings.Search(ctx, query, k)
	}()
	wg.Wait()

	// Cancellation is the caller's signal; everything else is a
	// degradation we answer through.
	if ctx.Err() != nil {
		return Grounding{}, ctx.Err()
	}
	if knowledgeErr != nil {
		s.logger.Warn("knowledge space search failed, answering without it", "error", knowledgeErr)
	}
	if learningsErr != nil {
		s.logger.Warn("learnings space search failed, answering without it", "error", learningsErr)
	}

	return g, nil
}
