package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/prompt"
)

// Generator turns a grounded prompt into model text. The production
// implementation calls the external model; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// askPrompt frames one question. Retrieved context rides inside
// nonce-delimited sections so persisted content cannot steer the model
// outside its role.
// %s placeholders: nonce pairs around context, learnings, question.
const askPrompt = `You are a data analyst answering questions against a SQL database. Use the curated context and past learnings below. When the question needs data, answer with a single SQL query in a ` + "```sql" + ` fence; otherwise answer in plain prose.

===CONTEXT_%s===
%s
===END_CONTEXT_%s===

===LEARNINGS_%s===
%s
===END_LEARNINGS_%s===

===QUESTION_%s===
%s
===END_QUESTION_%s===

Rules: SELECT or WITH only, no data modification. Add LIMIT 100 unless the question asks for an exact count or the query already aggregates.`

// buildAskPrompt renders the grounding block and wraps it with the
// question. Section order and headings are fixed so answers stay
// comparable across runs.
func buildAskPrompt(question string, g knowledge.Grounding) (string, error) {
	nonce, err := prompt.Nonce()
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return fmt.Sprintf(askPrompt,
		nonce, prompt.Sanitize(renderResults(g.Knowledge)), nonce,
		nonce, prompt.Sanitize(renderResults(g.Learnings)), nonce,
		nonce, prompt.Sanitize(question), nonce), nil
}

func renderResults(results []knowledge.Result) string {
	if len(results) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n%s\n\n", r.Entry.Name, r.Entry.Content)
	}
	return strings.TrimSpace(b.String())
}

// GenkitGenerator is the production Generator.
type GenkitGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitGenerator creates a Generator that calls the named model.
func NewGenkitGenerator(g *genkit.Genkit, model string) *GenkitGenerator {
	return &GenkitGenerator{g: g, model: model}
}

// Generate implements Generator.
func (g *GenkitGenerator) Generate(ctx context.Context, text string) (string, error) {
	opts := []ai.GenerateOption{ai.WithPrompt(text)}
	if g.model != "" {
		opts = append(opts, ai.WithModelName(g.model))
	}

	resp, err := genkit.Generate(ctx, g.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", fmt.Errorf("empty model response")
	}
	return out, nil
}
