package mutate

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func noopOperator(input []byte, _ map[string]any) ([]byte, error) {
	out := append([]byte{}, input...)
	out = append(out, 'x')
	return out, nil
}

func failingOperator(_ []byte, _ map[string]any) ([]byte, error) {
	return nil, errors.New("boom")
}

type staticOps map[string]Operator

func (s staticOps) Load() (map[string]Operator, error) { return s, nil }

type staticStrategy struct{ s *Strategy }

func (s staticStrategy) Load() (*Strategy, error) { return s.s, nil }

func newTestEngine(t *testing.T, strat *Strategy, ops map[string]Operator) *Engine {
	t.Helper()
	e, err := New(staticOps(ops), staticStrategy{strat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestSelectRule_FirstMatchWins(t *testing.T) {
	strat := &Strategy{Rules: []Rule{
		{Name: "never", Condition: strPtr("x > 100"), Operators: []WeightedOp{{Name: "a", Weight: 1}}},
		{Name: "always", Condition: nil, Operators: []WeightedOp{{Name: "a", Weight: 1}}},
		{Name: "unreachable", Condition: nil, Operators: []WeightedOp{{Name: "a", Weight: 1}}},
	}}
	e := newTestEngine(t, strat, map[string]Operator{"a": noopOperator})

	rule, err := e.SelectRule(map[string]any{"x": int64(1)})
	if err != nil {
		t.Fatalf("SelectRule: %v", err)
	}
	if rule.Name != "always" {
		t.Fatalf("expected rule 'always', got %q", rule.Name)
	}
}

func TestSelectRule_NoneMatch(t *testing.T) {
	strat := &Strategy{Rules: []Rule{
		{Name: "never", Condition: strPtr("x > 100"), Operators: []WeightedOp{{Name: "a", Weight: 1}}},
	}}
	e := newTestEngine(t, strat, map[string]Operator{"a": noopOperator})

	_, err := e.SelectRule(map[string]any{"x": int64(1)})
	var nrm *NoRuleMatches
	if !errors.As(err, &nrm) {
		t.Fatalf("expected NoRuleMatches, got %v", err)
	}
}

func TestSelectOperator_WeightedFairness(t *testing.T) {
	strat := &Strategy{Rules: []Rule{
		{Name: "r", Operators: []WeightedOp{{Name: "heavy", Weight: 99}, {Name: "light", Weight: 1}}},
	}}
	e := newTestEngine(t, strat, map[string]Operator{"heavy": noopOperator, "light": noopOperator})
	e.SeedRNG(42)

	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		counts[e.SelectOperator(&strat.Rules[0])]++
	}
	if counts["heavy"] <= counts["light"] {
		t.Fatalf("expected heavy-weighted operator to dominate, got %v", counts)
	}
}

func TestApply_DedupesWithinHistory(t *testing.T) {
	calls := 0
	var seq []byte
	op := func(input []byte, _ map[string]any) ([]byte, error) {
		calls++
		out := append([]byte{}, seq...)
		return out, nil
	}
	strat := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "fixed", Weight: 1}}}}}
	e := newTestEngine(t, strat, map[string]Operator{"fixed": op})
	e.SetMaxRetries(3)

	seq = []byte("same")
	if _, err := e.Apply([]byte("in"), nil); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	firstCalls := calls

	calls = 0
	out, err := e.Apply([]byte("in"), nil)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected all %d retries exhausted on a repeated digest, got %d calls", 3, calls)
	}
	if string(out.Data) != "same" {
		t.Fatalf("expected fallback to last attempt, got %q", out.Data)
	}
	_ = firstCalls
}

func TestApply_OperatorFailure(t *testing.T) {
	strat := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "bad", Weight: 1}}}}}
	e := newTestEngine(t, strat, map[string]Operator{"bad": failingOperator})

	_, err := e.Apply([]byte("in"), nil)
	var of *OperatorFailed
	if !errors.As(err, &of) {
		t.Fatalf("expected OperatorFailed, got %v", err)
	}
}

func TestHistoryBound_Evicts(t *testing.T) {
	i := 0
	op := func(input []byte, _ map[string]any) ([]byte, error) {
		i++
		return []byte{byte(i)}, nil
	}
	strat := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "incr", Weight: 1}}}}}
	e := newTestEngine(t, strat, map[string]Operator{"incr": op})
	e.SetMaxHistorySize(5)

	for n := 0; n < 20; n++ {
		if _, err := e.Apply(nil, nil); err != nil {
			t.Fatalf("Apply #%d: %v", n, err)
		}
	}
	if got := e.HistorySize(); got > 5 {
		t.Fatalf("expected history bounded to 5, got %d", got)
	}
}

func TestNew_RejectsEmptyRules(t *testing.T) {
	strat := &Strategy{}
	_, err := New(staticOps(map[string]Operator{"a": noopOperator}), staticStrategy{strat})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError for empty rule set, got %v", err)
	}
}

func TestNew_RejectsUnknownOperatorReference(t *testing.T) {
	strat := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "ghost", Weight: 1}}}}}
	_, err := New(staticOps(map[string]Operator{"a": noopOperator}), staticStrategy{strat})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError for unknown operator, got %v", err)
	}
}

func TestNew_RejectsBadCondition(t *testing.T) {
	strat := &Strategy{Rules: []Rule{{Name: "r", Condition: strPtr("x >"), Operators: []WeightedOp{{Name: "a", Weight: 1}}}}}
	_, err := New(staticOps(map[string]Operator{"a": noopOperator}), staticStrategy{strat})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError for malformed condition, got %v", err)
	}
}

type toggleStrategySource struct {
	calls int
	good  *Strategy
}

func (t *toggleStrategySource) Load() (*Strategy, error) {
	t.calls++
	if t.calls == 1 {
		return t.good, nil
	}
	return &Strategy{}, nil
}

func TestReload_AtomicOnFailure(t *testing.T) {
	good := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "a", Weight: 1}}}}}
	src := &toggleStrategySource{good: good}
	e, err := New(staticOps(map[string]Operator{"a": noopOperator}), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Reload(); err == nil {
		t.Fatalf("expected Reload to fail on second (empty) strategy load")
	}

	rule, err := e.SelectRule(nil)
	if err != nil {
		t.Fatalf("engine should still serve the original strategy after a failed reload: %v", err)
	}
	if rule.Name != "r" {
		t.Fatalf("expected original rule preserved, got %q", rule.Name)
	}
}

func TestMutateN_StopsOnFirstError(t *testing.T) {
	strat := &Strategy{Rules: []Rule{{Name: "r", Operators: []WeightedOp{{Name: "bad", Weight: 1}}}}}
	e := newTestEngine(t, strat, map[string]Operator{"bad": failingOperator})

	_, err := e.MutateN([]byte("x"), nil, 3)
	if err == nil {
		t.Fatalf("expected MutateN to propagate operator failure")
	}
}
