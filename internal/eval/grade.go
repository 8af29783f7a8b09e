package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/dash/internal/prompt"
)

// Grade is a black-box quality judgment: a 0-10 score plus the
// grader's rationale.
type Grade struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// Grader scores a response's quality for llm_grade mode.
type Grader interface {
	Grade(ctx context.Context, question, response string) (*Grade, error)
}

// passScore is the llm_grade pass threshold on the 0-10 scale.
const passScore = 7.0

const maxGradeResponseBytes = 4 * 1024

// gradePrompt asks the grading model for a structured judgment.
// %s placeholders: nonce pairs around question and response.
const gradePrompt = `You are grading a data analyst's answer to a database question. Score 0-10 for correctness and insight depth: 10 is a precise, well-supported answer; 7 is correct but shallow; below 5 is wrong or evasive.

===QUESTION_%s===
%s
===END_QUESTION_%s===

===RESPONSE_%s===
%s
===END_RESPONSE_%s===

Output JSON only:
{"score": 0.0, "rationale": "one or two sentences"}`

// GenkitGrader is the production Grader.
type GenkitGrader struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitGrader creates a Grader that calls the named model.
func NewGenkitGrader(g *genkit.Genkit, model string) *GenkitGrader {
	return &GenkitGrader{g: g, model: model}
}

// Grade implements Grader.
func (g *GenkitGrader) Grade(ctx context.Context, question, response string) (*Grade, error) {
	nonce, err := prompt.Nonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	text := fmt.Sprintf(gradePrompt,
		nonce, prompt.Sanitize(question), nonce,
		nonce, prompt.Sanitize(response), nonce)

	opts := []ai.GenerateOption{ai.WithPrompt(text)}
	if g.model != "" {
		opts = append(opts, ai.WithModelName(g.model))
	}

	resp, err := genkit.Generate(ctx, g.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("grading response: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("empty grade response")
	}
	if len(raw) > maxGradeResponseBytes {
		return nil, fmt.Errorf("grade response too large: %d bytes", len(raw))
	}

	var grade Grade
	if err := json.Unmarshal([]byte(prompt.StripFences(raw)), &grade); err != nil {
		return nil, fmt.Errorf("parsing grade: %w (raw: %q)", err, prompt.Truncate(raw, 200))
	}
	if grade.Score < 0 || grade.Score > 10 {
		return nil, fmt.Errorf("grade score %v out of range", grade.Score)
	}

	return &grade, nil
}
