// Package testutil provides shared test infrastructure: a
// deterministic fake embedder and a pgvector Postgres container with
// the dash schema applied.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/firebase/genkit/go/ai"
)

// FakeEmbedder is a deterministic ai.Embedder for tests. Identical
// text always embeds to the identical vector, and vectors for texts
// sharing tokens land near each other often enough for recall-sanity
// assertions.
//
// FailAll simulates a dead embedding backend: every call errors, which
// the knowledge layer records as dimension-0 rows on writes and as
// degraded (keyword-only) searches on reads.
type FakeEmbedder struct {
	Dim     int
	FailAll atomic.Bool

	calls atomic.Int64
}

// NewFakeEmbedder creates a FakeEmbedder producing dim-length vectors.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim}
}

// Calls reports how many Embed calls were made.
func (f *FakeEmbedder) Calls() int64 { return f.calls.Load() }

// Name implements ai.Embedder.
func (f *FakeEmbedder) Name() string { return "fake-embedder" }

// Embed implements ai.Embedder.
func (f *FakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.calls.Add(1)
	if f.FailAll.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: f.vector(text),
		})
	}
	return resp, nil
}

// vector hashes the text into a unit vector. Seeded per position so
// distinct texts spread across the space.
func (f *FakeEmbedder) vector(text string) []float32 {
	vec := make([]float32, f.Dim)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		// Map the hash onto [-1, 1).
		v := float64(int64(h.Sum64())) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
