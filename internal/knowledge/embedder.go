package knowledge

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// embedText generates an embedding for text with the requested output
// dimension. Returns an error on transport failure or an empty response;
// callers decide whether that failure is fatal (query embedding) or
// recorded as a dimension-0 row (document embedding).
func embedText(ctx context.Context, embedder ai.Embedder, text string, dim int) ([]float32, error) {
	dimension := int32(dim) // #nosec G115 -- config validates [1, 4096]
	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dimension},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}

// rateLimitedEmbedder wraps an ai.Embedder with a token-bucket limiter.
// Bulk loads (curated files, eval seeding) would otherwise burst past
// the embedding API's per-minute quota.
type rateLimitedEmbedder struct {
	inner   ai.Embedder
	limiter *rate.Limiter
}

// RateLimitEmbedder returns an embedder that allows at most rps requests
// per second with the given burst. A nil inner embedder is returned as-is.
func RateLimitEmbedder(inner ai.Embedder, rps float64, burst int) ai.Embedder {
	if inner == nil {
		return nil
	}
	return &rateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name implements ai.Embedder.
func (e *rateLimitedEmbedder) Name() string {
	return e.inner.Name()
}

// Register implements ai.Embedder by delegating to the wrapped embedder.
func (e *rateLimitedEmbedder) Register(r api.Registry) {
	e.inner.Register(r)
}

// Embed implements ai.Embedder. It blocks until the limiter grants a
// token or the context is canceled.
func (e *rateLimitedEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed rate limiter: %w", err)
	}
	return e.inner.Embed(ctx, req)
}
