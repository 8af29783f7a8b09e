package learning

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/koopa0/dash/internal/knowledge"
	"github.com/koopa0/dash/internal/log"
	"github.com/koopa0/dash/internal/target"
)

// scriptedExecer returns canned outcomes per call.
type scriptedExecer struct {
	results []*target.ResultSet
	errs    []error
	calls   int
}

func (s *scriptedExecer) Execute(ctx context.Context, query string) (*target.ResultSet, error) {
	i := s.calls
	s.calls++
	var rs *target.ResultSet
	var err error
	if i < len(s.results) {
		rs = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return rs, err
}

type fakeIntrospector struct {
	info *target.TableInfo
	err  error
}

func (f *fakeIntrospector) Describe(ctx context.Context, table, column string) (*target.TableInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.info != nil {
		return f.info, nil
	}
	return &target.TableInfo{Table: table}, nil
}

type fakeRetriever struct {
	grounding knowledge.Grounding
}

func (f *fakeRetriever) SearchBoth(ctx context.Context, query string, k int) (knowledge.Grounding, error) {
	return f.grounding, nil
}

// scriptedFixer proposes fixes in order; err applies to every call.
type scriptedFixer struct {
	proposals []*FixProposal
	err       error
	calls     int
}

func (f *scriptedFixer) ProposeFix(ctx context.Context, req FixRequest) (*FixProposal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := f.proposals[0]
	if len(f.proposals) > 1 {
		f.proposals = f.proposals[1:]
	}
	return p, nil
}

// fakeSaver records saves; err makes every Save fail.
type fakeSaver struct {
	saved []knowledge.LearningRecord
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, rec knowledge.LearningRecord) (*PersistedLearning, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, rec)
	return &PersistedLearning{Entry: knowledge.Entry{Name: rec.EntryName(), Dimension: 768}}, nil
}

var typeMismatchErr = &target.ExecError{
	SQL: "SELECT * FROM drivers_championship WHERE position = 1",
	Err: errors.New("column position is of type text but expression is of type integer"),
}

func proposal(sql string) *FixProposal {
	return &FixProposal{
		SQL:       sql,
		RootCause: "position is TEXT, compared to integer",
		Title:     "position column is TEXT",
		Learning:  "Use position = '1' not position = 1",
	}
}

func newTestLoop(exec *scriptedExecer, fixer Fixer, saver saver, maxCycles int) *Loop {
	return NewLoop(exec, &fakeIntrospector{}, &fakeRetriever{}, fixer, saver, maxCycles, log.NewNop())
}

func TestRecover_SucceedsFirstCycle(t *testing.T) {
	exec := &scriptedExecer{
		results: []*target.ResultSet{{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}},
	}
	fixer := &scriptedFixer{proposals: []*FixProposal{proposal("SELECT * FROM drivers_championship WHERE position = '1'")}}
	saver := &fakeSaver{}
	loop := newTestLoop(exec, fixer, saver, DefaultMaxCycles)

	outcome, err := loop.Recover(context.Background(),
		"who finished first", typeMismatchErr.SQL, typeMismatchErr)
	if err != nil {
		t.Fatalf("Recover() error: %v", err)
	}

	wantTrail := []State{StateExecuting, StateFailed, StateDiagnosing, StateFixing, StateReexecuting, StateSucceeded}
	if !reflect.DeepEqual(outcome.Trail, wantTrail) {
		t.Errorf("Recover() trail = %v, want %v", outcome.Trail, wantTrail)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("persisted %d learnings, want 1", len(saver.saved))
	}
	if saver.saved[0].Title != "position column is TEXT" {
		t.Errorf("persisted title = %q", saver.saved[0].Title)
	}
	if outcome.Learning == nil {
		t.Error("outcome carries no persisted learning")
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", outcome.Warnings)
	}
}

func TestRecover_BoundedAtMaxCycles(t *testing.T) {
	// Every fix fails; the loop must stop at exactly maxCycles
	// diagnose-fix cycles and surface GivenUpError.
	exec := &scriptedExecer{
		errs: []error{
			&target.ExecError{SQL: "fix1", Err: errors.New("still broken")},
			&target.ExecError{SQL: "fix2", Err: errors.New("still broken")},
			&target.ExecError{SQL: "fix3", Err: errors.New("still broken")},
		},
	}
	fixer := &scriptedFixer{proposals: []*FixProposal{proposal("fix1"), proposal("fix2"), proposal("fix3")}}
	loop := newTestLoop(exec, fixer, &fakeSaver{}, DefaultMaxCycles)

	_, err := loop.Recover(context.Background(), "q", "bad sql", typeMismatchErr)

	var gaveUp *GivenUpError
	if !errors.As(err, &gaveUp) {
		t.Fatalf("Recover() error = %T %v, want *GivenUpError", err, err)
	}
	if fixer.calls != DefaultMaxCycles {
		t.Errorf("fixer called %d times, want exactly %d", fixer.calls, DefaultMaxCycles)
	}
	if exec.calls != DefaultMaxCycles {
		t.Errorf("execute called %d times, want exactly %d", exec.calls, DefaultMaxCycles)
	}
	if len(gaveUp.Attempts) != DefaultMaxCycles {
		t.Errorf("GivenUpError.Attempts = %d, want %d", len(gaveUp.Attempts), DefaultMaxCycles)
	}
	if !errors.Is(err, typeMismatchErr) {
		t.Error("GivenUpError does not wrap the original execution error")
	}
}

func TestRecover_SecondCycleSucceeds(t *testing.T) {
	exec := &scriptedExecer{
		results: []*target.ResultSet{nil, {Columns: []string{"n"}, Rows: [][]any{{int64(2)}}}},
		errs:    []error{&target.ExecError{SQL: "fix1", Err: errors.New("nope")}, nil},
	}
	fixer := &scriptedFixer{proposals: []*FixProposal{proposal("fix1"), proposal("fix2")}}
	saver := &fakeSaver{}
	loop := newTestLoop(exec, fixer, saver, DefaultMaxCycles)

	outcome, err := loop.Recover(context.Background(), "q", "bad sql", typeMismatchErr)
	if err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	if outcome.SQL != "fix2" {
		t.Errorf("Recover() SQL = %q, want fix2", outcome.SQL)
	}
	wantTrail := []State{
		StateExecuting, StateFailed,
		StateDiagnosing, StateFixing, StateReexecuting, StateFailed,
		StateDiagnosing, StateFixing, StateReexecuting, StateSucceeded,
	}
	if !reflect.DeepEqual(outcome.Trail, wantTrail) {
		t.Errorf("Recover() trail = %v, want %v", outcome.Trail, wantTrail)
	}
}

func TestRecover_PersistFailureIsWarning(t *testing.T) {
	exec := &scriptedExecer{
		results: []*target.ResultSet{{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}},
	}
	fixer := &scriptedFixer{proposals: []*FixProposal{proposal("fixed")}}
	saver := &fakeSaver{err: &PersistenceError{Title: "t", Attempts: 2, Err: errors.New("unverified")}}
	loop := newTestLoop(exec, fixer, saver, DefaultMaxCycles)

	outcome, err := loop.Recover(context.Background(), "q", "bad sql", typeMismatchErr)
	if err != nil {
		t.Fatalf("Recover() error: %v, want success with warning", err)
	}
	if len(outcome.Warnings) != 1 {
		t.Fatalf("Recover() warnings = %v, want exactly one", outcome.Warnings)
	}
	if outcome.Learning != nil {
		t.Error("outcome claims a learning despite failed persistence")
	}
}

func TestRecover_TimeoutPropagatesWithoutRetry(t *testing.T) {
	exec := &scriptedExecer{
		errs: []error{fmt.Errorf("%w: query exceeded budget", target.ErrTimeout)},
	}
	fixer := &scriptedFixer{proposals: []*FixProposal{proposal("fix1")}}
	loop := newTestLoop(exec, fixer, &fakeSaver{}, DefaultMaxCycles)

	_, err := loop.Recover(context.Background(), "q", "bad sql", typeMismatchErr)
	if !errors.Is(err, target.ErrTimeout) {
		t.Fatalf("Recover() = %v, want ErrTimeout", err)
	}
	if fixer.calls != 1 {
		t.Errorf("fixer called %d times after timeout, want 1 (no re-diagnosis)", fixer.calls)
	}
}

func TestRecover_FixerFailureGivesUp(t *testing.T) {
	fixer := &scriptedFixer{err: errors.New("model unavailable")}
	loop := newTestLoop(&scriptedExecer{}, fixer, &fakeSaver{}, DefaultMaxCycles)

	_, err := loop.Recover(context.Background(), "q", "bad sql", typeMismatchErr)
	var gaveUp *GivenUpError
	if !errors.As(err, &gaveUp) {
		t.Fatalf("Recover() error = %T, want *GivenUpError", err)
	}
	if fixer.calls != 1 {
		t.Errorf("fixer retried %d times without new context, want 1", fixer.calls)
	}
}

func TestStateString(t *testing.T) {
	if StateGivenUp.String() != "given_up" {
		t.Errorf("StateGivenUp.String() = %q", StateGivenUp.String())
	}
	if State(99).String() != "state(99)" {
		t.Errorf("unknown state String() = %q", State(99).String())
	}
}
