package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/sqltext"
	"github.com/koopa0/dash/internal/target"
)

// State is a recovery loop phase. The loop is an explicit machine with
// an enumerated terminal GivenUp state, never an open-ended retry.
type State int

const (
	StateExecuting State = iota
	StateFailed
	StateDiagnosing
	StateFixing
	StateReexecuting
	StateSucceeded
	StateGivenUp
)

var stateNames = map[State]string{
	StateExecuting:   "executing",
	StateFailed:      "failed",
	StateDiagnosing:  "diagnosing",
	StateFixing:      "fixing",
	StateReexecuting: "reexecuting",
	StateSucceeded:   "succeeded",
	StateGivenUp:     "given_up",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Attempt records one diagnose-fix cycle for the diagnostic trail.
type Attempt struct {
	SQL       string
	Error     string
	Diagnosis string
}

// GivenUpError reports an exhausted recovery loop. It carries the
// original execution error plus every attempt's diagnostic context so
// the regression is reproducible from the error alone.
type GivenUpError struct {
	Question string
	Original error
	Attempts []Attempt
}

func (e *GivenUpError) Error() string {
	return fmt.Sprintf("recovery given up after %d attempts: %v", len(e.Attempts), e.Original)
}

func (e *GivenUpError) Unwrap() error { return e.Original }

// introspector is the slice of target.Introspector the loop needs.
type introspector interface {
	Describe(ctx context.Context, table, column string) (*target.TableInfo, error)
}

// retriever is the slice of knowledge.System the loop needs.
type retriever interface {
	SearchBoth(ctx context.Context, query string, k int) (knowledge.Grounding, error)
}

// saver is the slice of Persistor the loop needs.
type saver interface {
	Save(ctx context.Context, rec knowledge.LearningRecord) (*PersistedLearning, error)
}

// Outcome is a successful recovery: the corrected query, its result,
// the learning persisted from the episode, and any non-fatal warnings
// (a failed persist does not roll back a working answer).
type Outcome struct {
	SQL      string
	Result   *target.ResultSet
	Learning *PersistedLearning
	Warnings []string
	Trail    []State
}

// DefaultMaxCycles bounds diagnose-fix cycles. Two is the contract:
// the loop must never retry unboundedly.
const DefaultMaxCycles = 2

// diagnoseTopK is how many entries each knowledge space contributes to
// a diagnosis.
const diagnoseTopK = 3

// Loop drives recovery from a failed execution. All retry state is
// local to one Recover call; concurrent questions never share it.
type Loop struct {
	exec      target.Execer
	intro     introspector
	retriever retriever
	fixer     Fixer
	saver     saver
	maxCycles int
	logger    *slog.Logger
}

// NewLoop creates a recovery loop. maxCycles values below 1 fall back
// to DefaultMaxCycles.
func NewLoop(exec target.Execer, intro introspector, retriever retriever,
	fixer Fixer, saver saver, maxCycles int, logger *slog.Logger) *Loop {
	if maxCycles < 1 {
		maxCycles = DefaultMaxCycles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		exec:      exec,
		intro:     intro,
		retriever: retriever,
		fixer:     fixer,
		saver:     saver,
		maxCycles: maxCycles,
		logger:    logger,
	}
}

// Recover runs the state machine for one failed execution.
//
// On success it returns the outcome and persists a learning capturing
// root cause and fix; persistence failure is reported as a warning on
// the outcome, never as an error. When the cycle budget is exhausted it
// returns *GivenUpError with the full trail. Timeouts and cancellation
// propagate immediately: a slow target is not a SQL bug, so no fix is
// attempted.
func (l *Loop) Recover(ctx context.Context, question, failedSQL string, execErr error) (*Outcome, error) {
	trail := []State{StateExecuting, StateFailed}
	attempts := make([]Attempt, 0, l.maxCycles)

	currentSQL, currentErr := failedSQL, execErr

	for cycle := 1; cycle <= l.maxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trail = append(trail, StateDiagnosing)
		diagnosis := l.diagnose(ctx, currentSQL, currentErr)
		l.logger.Debug("diagnosed failed execution", "cycle", cycle, "sql", currentSQL)

		trail = append(trail, StateFixing)
		proposal, err := l.fixer.ProposeFix(ctx, FixRequest{
			Question:  question,
			FailedSQL: currentSQL,
			ExecError: currentErr.Error(),
			Diagnosis: diagnosis,
		})
		if err != nil {
			// Without a proposal another diagnose cycle has nothing new
			// to work with; surrender with what we know.
			attempts = append(attempts, Attempt{
				SQL: currentSQL, Error: currentErr.Error(), Diagnosis: diagnosis,
			})
			l.logger.Warn("fix proposal failed", "cycle", cycle, "error", err)
			break
		}

		trail = append(trail, StateReexecuting)
		result, err := l.exec.Execute(ctx, proposal.SQL)
		if err == nil {
			trail = append(trail, StateSucceeded)
			outcome := &Outcome{SQL: proposal.SQL, Result: result, Trail: trail}
			l.persistLearning(ctx, proposal, outcome)
			return outcome, nil
		}

		if errors.Is(err, target.ErrTimeout) || ctx.Err() != nil {
			return nil, err
		}

		attempts = append(attempts, Attempt{
			SQL: proposal.SQL, Error: err.Error(), Diagnosis: diagnosis,
		})
		currentSQL, currentErr = proposal.SQL, err
		trail = append(trail, StateFailed)
		l.logger.Info("fix failed, cycle complete", "cycle", cycle, "error", err)
	}

	trail = append(trail, StateGivenUp)
	l.logger.Warn("recovery given up",
		"attempts", len(attempts), "original_error", execErr)
	return nil, &GivenUpError{Question: question, Original: execErr, Attempts: attempts}
}

// persistLearning saves the episode's learning. A failed persist is
// demoted to a warning on the outcome: the answer already succeeded.
func (l *Loop) persistLearning(ctx context.Context, proposal *FixProposal, outcome *Outcome) {
	title := proposal.Title
	if strings.TrimSpace(title) == "" {
		title = "query fix: " + firstLine(proposal.RootCause)
	}
	body := proposal.Learning
	if strings.TrimSpace(body) == "" {
		body = proposal.RootCause
	}

	persisted, err := l.saver.Save(ctx, knowledge.LearningRecord{
		Title: title,
		Body:  body,
		Facts: map[string]string{"fixed_sql": outcome.SQL},
	})
	if err != nil {
		warning := fmt.Sprintf("fix succeeded but learning was not persisted: %v", err)
		outcome.Warnings = append(outcome.Warnings, warning)
		l.logger.Warn("learning persistence failed after successful fix", "error", err)
		return
	}
	outcome.Learning = persisted
}

// diagnose gathers candidate explanations for a failure: live schemas
// of the tables the statement touches, plus whatever both knowledge
// spaces know about the error. Every sub-step is best-effort: a
// diagnosis that only says "schema unavailable" is still a diagnosis.
func (l *Loop) diagnose(ctx context.Context, failedSQL string, execErr error) string {
	var b strings.Builder

	for _, table := range sqltext.Tables(failedSQL) {
		info, err := l.intro.Describe(ctx, table, "")
		if err != nil {
			fmt.Fprintf(&b, "Schema for %s unavailable: %v\n", table, err)
			continue
		}
		b.WriteString(info.Render())
	}

	grounding, err := l.retriever.SearchBoth(ctx, firstLine(execErr.Error()), diagnoseTopK)
	if err != nil {
		fmt.Fprintf(&b, "Knowledge retrieval unavailable: %v\n", err)
		return b.String()
	}
	for _, r := range grounding.Learnings {
		fmt.Fprintf(&b, "Known learning: %s\n", r.Entry.Content)
	}
	for _, r := range grounding.Knowledge {
		fmt.Fprintf(&b, "Curated context: %s\n", r.Entry.Content)
	}

	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
