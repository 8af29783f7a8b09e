package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/dash/internal/prompt"
)

// FixRequest carries everything the model gets to see when asked to
// repair a failed query.
type FixRequest struct {
	Question  string
	FailedSQL string
	ExecError string
	Diagnosis string
}

// FixProposal is the model's structured answer: a corrected query plus
// the learning that should be persisted if the fix works.
type FixProposal struct {
	SQL       string `json:"sql"`
	RootCause string `json:"root_cause"`
	Title     string `json:"title"`
	Learning  string `json:"learning"`
}

// Fixer produces a corrected query from diagnosis context. The
// production implementation calls the external model; tests substitute
// fakes.
type Fixer interface {
	ProposeFix(ctx context.Context, req FixRequest) (*FixProposal, error)
}

// maxFixResponseBytes limits fix-proposal response size (8 KB).
const maxFixResponseBytes = 8 * 1024

// fixPrompt instructs the model to repair the query and name what it
// learned. Nonce-delimited boundaries prevent prompt injection from
// error text or retrieved content.
// %s placeholders: nonce pairs around question, SQL, error, diagnosis.
const fixPrompt = `You are a SQL repair system. A query failed against the target database. Produce a corrected query and state what was learned.

===QUESTION_%s===
%s
===END_QUESTION_%s===

===FAILED_SQL_%s===
%s
===END_FAILED_SQL_%s===

===ERROR_%s===
%s
===END_ERROR_%s===

===DIAGNOSIS_%s===
%s
===END_DIAGNOSIS_%s===

Rules: SELECT or WITH only, no data modification, keep LIMIT clauses.

Output JSON only:
{"sql": "corrected query", "root_cause": "why it failed", "title": "short learning title", "learning": "the durable fact and the fix"}`

// GenkitFixer is the production Fixer backed by genkit.Generate.
type GenkitFixer struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitFixer creates a Fixer that calls the named model.
func NewGenkitFixer(g *genkit.Genkit, model string) *GenkitFixer {
	return &GenkitFixer{g: g, model: model}
}

// ProposeFix implements Fixer.
func (f *GenkitFixer) ProposeFix(ctx context.Context, req FixRequest) (*FixProposal, error) {
	nonce, err := prompt.Nonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	text := fmt.Sprintf(fixPrompt,
		nonce, prompt.Sanitize(req.Question), nonce,
		nonce, prompt.Sanitize(req.FailedSQL), nonce,
		nonce, prompt.Sanitize(req.ExecError), nonce,
		nonce, prompt.Sanitize(req.Diagnosis), nonce)

	opts := []ai.GenerateOption{ai.WithPrompt(text)}
	if f.model != "" {
		opts = append(opts, ai.WithModelName(f.model))
	}

	resp, err := genkit.Generate(ctx, f.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating fix: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("empty fix response")
	}
	if len(raw) > maxFixResponseBytes {
		return nil, fmt.Errorf("fix response too large: %d bytes", len(raw))
	}

	var proposal FixProposal
	if err := json.Unmarshal([]byte(prompt.StripFences(raw)), &proposal); err != nil {
		return nil, fmt.Errorf("parsing fix proposal: %w (raw: %q)", err, prompt.Truncate(raw, 200))
	}
	if strings.TrimSpace(proposal.SQL) == "" {
		return nil, fmt.Errorf("fix proposal contains no SQL")
	}

	return &proposal, nil
}
