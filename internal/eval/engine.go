// Package eval runs the fixed test battery against the full pipeline
// and scores responses in three independently combinable modes.
//
// string_match is intentionally crude: it checks case-insensitive
// substring containment, so a numerically correct answer formatted
// differently (say "$123,456.78" against an expected "123456.78")
// fails. That false-negative behavior is a known limitation of the
// mode, not a bug; golden_compare exists because of it.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/koopa0/dash/internal/agent"
	"github.com/koopa0/dash/internal/sqltext"
	"github.com/koopa0/dash/internal/target"
)

// Mode selects a scoring strategy.
type Mode string

const (
	ModeStringMatch   Mode = "string_match"
	ModeLLMGrade      Mode = "llm_grade"
	ModeGoldenCompare Mode = "golden_compare"
)

// ParseModes validates mode names from the CLI. Order and duplicates
// are normalized.
func ParseModes(names []string) ([]Mode, error) {
	seen := make(map[Mode]bool)
	var modes []Mode
	for _, name := range names {
		m := Mode(strings.TrimSpace(strings.ToLower(name)))
		switch m {
		case ModeStringMatch, ModeLLMGrade, ModeGoldenCompare:
			if !seen[m] {
				seen[m] = true
				modes = append(modes, m)
			}
		default:
			return nil, fmt.Errorf("unknown eval mode %q", name)
		}
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no eval modes selected")
	}
	return modes, nil
}

// ModeResult is one mode's verdict on one case.
type ModeResult struct {
	Mode    Mode    `json:"mode"`
	Passed  bool    `json:"passed"`
	Skipped bool    `json:"skipped,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// CaseResult aggregates every selected mode's verdict for one case.
// Passed requires every non-skipped mode to pass.
type CaseResult struct {
	Question string       `json:"question"`
	Category string       `json:"category"`
	Response string       `json:"response,omitempty"`
	SQL      string       `json:"sql,omitempty"`
	Error    string       `json:"error,omitempty"`
	Passed   bool         `json:"passed"`
	Modes    []ModeResult `json:"modes"`
}

// Tally counts passes within a grouping.
type Tally struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// Report is the full battery outcome: per case, per category, and
// overall. Output is deterministic for deterministic inputs.
type Report struct {
	Cases      []CaseResult     `json:"cases"`
	Categories map[string]Tally `json:"categories"`
	Overall    Tally            `json:"overall"`
}

// Failed reports whether any case failed under the selected modes.
func (r *Report) Failed() bool {
	return r.Overall.Passed < r.Overall.Total
}

// WriteJSON writes the report for machine consumption.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// asker is the slice of agent.Pipeline the engine needs.
type asker interface {
	Ask(ctx context.Context, question string) (*agent.Answer, error)
}

// Engine runs test cases through the pipeline and scores them.
type Engine struct {
	asker  asker
	target target.Execer
	grader Grader
	logger *slog.Logger
}

// NewEngine assembles an eval engine. target is required only for
// golden_compare; grader only for llm_grade. A missing dependency
// skips that mode rather than failing the run.
func NewEngine(asker asker, exec target.Execer, grader Grader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{asker: asker, target: exec, grader: grader, logger: logger}
}

// Run executes each case against the pipeline and applies every
// selected mode. A pipeline error fails the case under all modes; the
// run itself only fails on cancellation.
func (e *Engine) Run(ctx context.Context, cases []TestCase, modes []Mode) (*Report, error) {
	report := &Report{Categories: make(map[string]Tally)}

	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.logger.Info("running eval case",
			"case", i+1, "of", len(cases), "category", tc.Category, "question", tc.Question)

		cr := e.runCase(ctx, tc, modes)
		report.Cases = append(report.Cases, cr)

		tally := report.Categories[tc.Category]
		tally.Total++
		if cr.Passed {
			tally.Passed++
		}
		report.Categories[tc.Category] = tally

		report.Overall.Total++
		if cr.Passed {
			report.Overall.Passed++
		}
	}

	return report, nil
}

func (e *Engine) runCase(ctx context.Context, tc TestCase, modes []Mode) CaseResult {
	cr := CaseResult{Question: tc.Question, Category: tc.Category}

	answer, err := e.asker.Ask(ctx, tc.Question)
	if err != nil {
		cr.Error = err.Error()
		for _, m := range modes {
			cr.Modes = append(cr.Modes, ModeResult{Mode: m, Detail: "pipeline error"})
		}
		return cr
	}
	cr.Response = answer.Text
	cr.SQL = answer.SQL

	cr.Passed = true
	for _, m := range modes {
		var mr ModeResult
		switch m {
		case ModeStringMatch:
			mr = scoreStringMatch(tc, answer)
		case ModeLLMGrade:
			mr = e.scoreLLMGrade(ctx, tc, answer)
		case ModeGoldenCompare:
			mr = e.scoreGoldenCompare(ctx, tc, answer)
		}
		cr.Modes = append(cr.Modes, mr)
		if !mr.Passed && !mr.Skipped {
			cr.Passed = false
		}
	}
	return cr
}

func scoreStringMatch(tc TestCase, answer *agent.Answer) ModeResult {
	mr := ModeResult{Mode: ModeStringMatch, Passed: true}
	if len(tc.ExpectedStrings) == 0 {
		mr.Detail = "no expected strings"
		return mr
	}

	haystack := strings.ToLower(answer.Text)
	var missing []string
	for _, want := range tc.ExpectedStrings {
		if !strings.Contains(haystack, strings.ToLower(want)) {
			missing = append(missing, want)
		}
	}
	found := len(tc.ExpectedStrings) - len(missing)
	mr.Score = float64(found) / float64(len(tc.ExpectedStrings))
	if len(missing) > 0 {
		mr.Passed = false
		sort.Strings(missing)
		mr.Detail = fmt.Sprintf("missing %s", strings.Join(missing, ", "))
	}
	return mr
}

func (e *Engine) scoreLLMGrade(ctx context.Context, tc TestCase, answer *agent.Answer) ModeResult {
	mr := ModeResult{Mode: ModeLLMGrade}
	if e.grader == nil {
		mr.Skipped = true
		mr.Detail = "no grader configured"
		return mr
	}

	grade, err := e.grader.Grade(ctx, tc.Question, answer.Text)
	if err != nil {
		mr.Detail = fmt.Sprintf("grading failed: %v", err)
		return mr
	}
	mr.Score = grade.Score
	mr.Passed = grade.Score >= passScore
	mr.Detail = grade.Rationale
	return mr
}

// scoreGoldenCompare runs the golden SQL and the SQL the agent actually
// executed, never SQL re-parsed from answer prose, and compares result
// sets. Comparison is order-insensitive unless the golden query orders
// its output.
func (e *Engine) scoreGoldenCompare(ctx context.Context, tc TestCase, answer *agent.Answer) ModeResult {
	mr := ModeResult{Mode: ModeGoldenCompare}
	switch {
	case e.target == nil:
		mr.Skipped = true
		mr.Detail = "no target configured"
		return mr
	case tc.GoldenSQL == "":
		mr.Skipped = true
		mr.Detail = "no golden sql"
		return mr
	case answer.SQL == "":
		mr.Detail = "agent executed no SQL"
		return mr
	}

	golden, err := e.target.Execute(ctx, tc.GoldenSQL)
	if err != nil {
		mr.Detail = fmt.Sprintf("golden sql failed: %v", err)
		return mr
	}

	actual := answer.Result
	if actual == nil {
		// The answer carries no materialized result; re-run the SQL the
		// agent executed.
		actual, err = e.target.Execute(ctx, answer.SQL)
		if err != nil {
			mr.Detail = fmt.Sprintf("agent sql failed: %v", err)
			return mr
		}
	}

	ordered := sqltext.HasOrderBy(tc.GoldenSQL)
	ok, detail := compareResults(golden, actual, ordered)
	mr.Passed = ok
	mr.Detail = detail
	if ok {
		mr.Score = 1.0
	}
	return mr
}
