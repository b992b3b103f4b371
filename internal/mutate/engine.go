// Package mutate implements the mutation engine described in spec.md
// §4.C: operator loading + rule-based, weighted selection + retry-until-
// novel deduplication against a bounded digest history.
package mutate

import (
	"crypto/md5"
	"fmt"
	"math/rand"
	"sync"

	"github.com/execstatefuzzer/execstatefuzzer/internal/predicate"
)

const (
	defaultMaxRetries     = 5
	defaultMaxHistorySize = 1000
)

type digest [16]byte

// Engine orchestrates rule selection, weighted operator sampling, and
// mutation-history deduplication. Its own mutex guards the strategy,
// operator table, RNG and digest history, and every method takes it, so
// callers need no lock of their own; internal/fuzzloop, the one place
// concurrency is introduced, calls Apply from its dispatch goroutine.
type Engine struct {
	mu sync.Mutex

	opSource   OperatorSource
	stratSrc   StrategySource
	operators  map[string]Operator
	strategy   *Strategy

	history     map[digest]struct{}
	historyFIFO []digest
	maxHistory  int
	maxRetries  int

	rng *rand.Rand
}

// New loads operators and a strategy from the given sources and
// validates the result before returning. Any failure is a LoadError and
// aborts construction, per spec.md §4.C/§7.
func New(opSource OperatorSource, stratSrc StrategySource) (*Engine, error) {
	e := &Engine{
		opSource:   opSource,
		stratSrc:   stratSrc,
		history:    make(map[digest]struct{}),
		maxHistory: defaultMaxHistorySize,
		maxRetries: defaultMaxRetries,
		rng:        rand.New(rand.NewSource(1)),
	}
	ops, strat, err := e.loadAll()
	if err != nil {
		return nil, err
	}
	e.operators = ops
	e.strategy = strat
	return e, nil
}

// SetMaxRetries overrides the default retry ceiling (5) for novel-digest
// retries in Apply.
func (e *Engine) SetMaxRetries(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.maxRetries = n
	}
}

// SetMaxHistorySize overrides the default history bound (1000).
func (e *Engine) SetMaxHistorySize(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.maxHistory = n
	}
}

// SeedRNG makes operator selection reproducible for a given seed
// (spec.md §5 determinism property), within the limits of whatever
// randomness individual operators also introduce internally.
func (e *Engine) SeedRNG(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

func (e *Engine) loadAll() (map[string]Operator, *Strategy, error) {
	ops, err := e.opSource.Load()
	if err != nil {
		return nil, nil, loadErrf("loading operators: %v", err)
	}
	if len(ops) == 0 {
		return nil, nil, loadErrf("operator source produced no operators")
	}
	strat, err := e.stratSrc.Load()
	if err != nil {
		return nil, nil, loadErrf("loading strategy: %v", err)
	}
	if err := validateStrategy(strat, ops); err != nil {
		return nil, nil, err
	}
	return ops, strat, nil
}

func validateStrategy(strat *Strategy, ops map[string]Operator) error {
	if strat == nil || len(strat.Rules) == 0 {
		return loadErrf("strategy has no rules")
	}
	for _, rule := range strat.Rules {
		if len(rule.Operators) == 0 {
			return loadErrf("rule %q: operators must be a non-empty list", rule.Name)
		}
		for _, wop := range rule.Operators {
			if _, ok := ops[wop.Name]; !ok {
				return loadErrf("rule %q: unknown operator %q", rule.Name, wop.Name)
			}
			if wop.Weight <= 0 {
				return loadErrf("rule %q: operator %q has non-positive weight %v", rule.Name, wop.Name, wop.Weight)
			}
		}
		if rule.Condition != nil {
			if err := predicate.Validate(*rule.Condition); err != nil {
				return loadErrf("rule %q: invalid condition %q: %v", rule.Name, *rule.Condition, err)
			}
		}
	}
	return nil
}

// Reload re-runs both loaders against current file contents. Per
// spec.md §4.C, a partial failure must not leave the engine half
// updated: either both loaders succeed and validate, or the previous
// operators/strategy are preserved untouched.
func (e *Engine) Reload() error {
	ops, strat, err := e.loadAll()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operators = ops
	e.strategy = strat
	return nil
}

// SelectRule returns the first rule whose condition is absent or
// evaluates true against ctx (spec.md §4.C, first-match semantics).
func (e *Engine) SelectRule(ctx map[string]any) (*Rule, error) {
	e.mu.Lock()
	strategy := e.strategy
	e.mu.Unlock()

	env := predicate.NewEnv(toValueEnv(ctx))
	for i := range strategy.Rules {
		rule := &strategy.Rules[i]
		if rule.Condition == nil {
			return rule, nil
		}
		if predicate.Truth(*rule.Condition, env) {
			return rule, nil
		}
	}
	return nil, &NoRuleMatches{Context: ctx}
}

// SelectOperator weighted-samples one operator name from rule's menu.
func (e *Engine) SelectOperator(rule *Rule) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total float64
	for _, w := range rule.Operators {
		total += w.Weight
	}
	target := e.rng.Float64() * total
	var cumulative float64
	for _, w := range rule.Operators {
		cumulative += w.Weight
		if target < cumulative {
			return w.Name
		}
	}
	return rule.Operators[len(rule.Operators)-1].Name
}

// Output is one emitted mutation: the mutated bytes and the operator
// that produced them.
type Output struct {
	Data     []byte
	Operator string
}

// Apply selects a rule and operator, then applies the operator to data,
// retrying up to maxRetries times while the digest collides with the
// mutation history. On the first novel digest it records the digest and
// returns. If every retry collides, it returns the last attempt anyway
// (spec.md §4.C final-fallback clause).
func (e *Engine) Apply(data []byte, mutationContext map[string]any) (Output, error) {
	rule, err := e.SelectRule(mutationContext)
	if err != nil {
		return Output{}, err
	}
	opName := e.SelectOperator(rule)

	e.mu.Lock()
	op, ok := e.operators[opName]
	maxRetries := e.maxRetries
	e.mu.Unlock()
	if !ok {
		return Output{}, &OperatorFailed{Operator: opName, Cause: fmt.Errorf("operator not loaded")}
	}

	var last []byte
	for attempt := 0; attempt < maxRetries; attempt++ {
		mutated, err := op(data, mutationContext)
		if err != nil {
			return Output{}, &OperatorFailed{Operator: opName, Cause: err}
		}
		last = mutated

		d := md5.Sum(mutated)
		e.mu.Lock()
		_, seen := e.history[d]
		if !seen {
			e.recordDigestLocked(d)
		}
		e.mu.Unlock()

		if !seen {
			return Output{Data: mutated, Operator: opName}, nil
		}
	}
	return Output{Data: last, Operator: opName}, nil
}

// recordDigestLocked adds a digest to the bounded history, evicting the
// oldest entry (FIFO) when at capacity. Callers must hold e.mu.
func (e *Engine) recordDigestLocked(d digest) {
	if len(e.historyFIFO) >= e.maxHistory {
		oldest := e.historyFIFO[0]
		e.historyFIFO = e.historyFIFO[1:]
		delete(e.history, oldest)
	}
	e.history[d] = struct{}{}
	e.historyFIFO = append(e.historyFIFO, d)
}

// MutateN produces up to n mutations of data, per spec.md §4.C. An
// operator error aborts the whole batch with OperatorFailed; a
// NoRuleMatches equally aborts the batch.
func (e *Engine) MutateN(data []byte, mutationContext map[string]any, n int) ([]Output, error) {
	out := make([]Output, 0, n)
	for i := 0; i < n; i++ {
		o, err := e.Apply(data, mutationContext)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// HistorySize reports the current digest-history occupancy, for tests
// and observability.
func (e *Engine) HistorySize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

