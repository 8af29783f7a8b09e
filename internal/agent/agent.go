// Package agent wires retrieval, generation, execution, and recovery
// into the question-answering pipeline. Every answer is grounded: the
// model only sees the question plus what the knowledge spaces returned
// for it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/learning"
	"github.com/koopa0/dash/internal/sqltext"
	"github.com/koopa0/dash/internal/target"
)

// retriever is the slice of knowledge.System the pipeline needs.
type retriever interface {
	SearchBoth(ctx context.Context, query string, k int) (knowledge.Grounding, error)
}

// recoverer is the slice of learning.Loop the pipeline needs.
type recoverer interface {
	Recover(ctx context.Context, question, failedSQL string, execErr error) (*learning.Outcome, error)
}

// patternStore is the write surface of the curated knowledge space.
type patternStore interface {
	Add(ctx context.Context, e knowledge.Entry) (knowledge.Entry, error)
	Retire(ctx context.Context, name string) (int64, error)
}

// Answer is one completed question. SQL and Result are empty when the
// model answered in prose without querying.
type Answer struct {
	Text      string
	SQL       string
	Result    *target.ResultSet
	Grounding knowledge.Grounding
	Learning  *learning.PersistedLearning
	Warnings  []string
	Recovered bool
}

// DefaultTopK is how many entries each space contributes per question.
const DefaultTopK = 5

// Pipeline answers questions end to end. It holds no per-question
// state; one Pipeline serves concurrent callers.
type Pipeline struct {
	retriever retriever
	gen       Generator
	exec      target.Execer
	loop      recoverer
	patterns  patternStore
	topK      int
	logger    *slog.Logger
}

// NewPipeline assembles the pipeline. topK values below 1 fall back to
// DefaultTopK; patterns may be nil when validated-query capture is not
// wired (SaveValidatedQuery then fails).
func NewPipeline(retriever retriever, gen Generator, exec target.Execer,
	loop recoverer, patterns patternStore, topK int, logger *slog.Logger) *Pipeline {
	if topK < 1 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever: retriever,
		gen:       gen,
		exec:      exec,
		loop:      loop,
		patterns:  patterns,
		topK:      topK,
		logger:    logger,
	}
}

// Ask answers one question. Retrieval degradation is absorbed upstream;
// only cancellation stops the pipeline before generation. A failed
// execution enters the recovery loop, whose exhaustion surfaces as
// *learning.GivenUpError. Timeouts propagate unwrapped.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}

	grounding, err := p.retriever.SearchBoth(ctx, question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	p.logger.Debug("retrieved grounding",
		"knowledge", len(grounding.Knowledge), "learnings", len(grounding.Learnings))

	text, err := buildAskPrompt(question, grounding)
	if err != nil {
		return nil, err
	}
	raw, err := p.gen.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	answer := &Answer{Text: raw, Grounding: grounding}

	sql := sqltext.Extract(raw)
	if sql == "" {
		// Prose answer; nothing to execute.
		return answer, nil
	}
	answer.SQL = sql

	result, err := p.exec.Execute(ctx, sql)
	if err == nil {
		answer.Result = result
		return answer, nil
	}

	var execErr *target.ExecError
	if !errors.As(err, &execErr) {
		// Timeouts, cancellation, and rejected statements are not
		// fixable SQL bugs; no recovery attempt.
		return nil, err
	}

	p.logger.Info("execution failed, entering recovery", "error", execErr)
	outcome, err := p.loop.Recover(ctx, question, sql, execErr)
	if err != nil {
		return nil, err
	}

	answer.SQL = outcome.SQL
	answer.Result = outcome.Result
	answer.Learning = outcome.Learning
	answer.Warnings = outcome.Warnings
	answer.Recovered = true
	return answer, nil
}

// SaveValidatedQuery captures a query the user confirmed as correct
// into the curated knowledge space, retiring any previous pattern with
// the same name so retrieval sees one current version.
func (p *Pipeline) SaveValidatedQuery(ctx context.Context, name, description, sql string) (knowledge.Entry, error) {
	if p.patterns == nil {
		return knowledge.Entry{}, fmt.Errorf("no pattern store configured")
	}
	if err := target.CheckReadOnly(sql); err != nil {
		return knowledge.Entry{}, fmt.Errorf("rejecting validated query: %w", err)
	}

	pattern := knowledge.QueryPattern{Name: name, Description: description, SQL: sql}

	retired, err := p.patterns.Retire(ctx, pattern.EntryName())
	if err != nil {
		return knowledge.Entry{}, fmt.Errorf("retiring previous pattern: %w", err)
	}
	if retired > 0 {
		p.logger.Info("superseded previous query pattern", "name", pattern.EntryName(), "retired", retired)
	}

	return p.patterns.Add(ctx, knowledge.Entry{
		Name:     pattern.EntryName(),
		Content:  pattern.Render(),
		Metadata: pattern.Metadata(),
	})
}
