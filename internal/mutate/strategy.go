package mutate

// Operator is a named pure byte transformation: it takes the current
// input and the mutation context dict the projector produced for the
// run that seeded this mutation, and returns new bytes. Operators are
// discovered dynamically per spec.md §3 — see internal/mutate/load.
type Operator func(input []byte, mutationContext map[string]any) ([]byte, error)

// WeightedOp is one (operator name, weight) pair inside a Rule's
// operator menu. Weight must be > 0; validated at load time.
type WeightedOp struct {
	Name   string
	Weight float64
}

// Rule is a condition plus a weighted operator menu (spec.md §3). A nil
// Condition means unconditional — the first rule in the strategy whose
// Condition is nil or evaluates true wins (first-match, spec.md §4.C).
type Rule struct {
	Name      string
	Condition *string
	Operators []WeightedOp
}

// Strategy is an ordered list of rules (spec.md §3).
type Strategy struct {
	Rules []Rule
}

// OperatorSource loads the named operator table the engine mutates
// with. Implementations: load.StaticSource (a closed, compiled-in
// registry) and load.PluginSource (a Go plugin exposing a stable symbol
// table) — see SPEC_FULL.md §6.7.
type OperatorSource interface {
	Load() (map[string]Operator, error)
}

// StrategySource loads the rule-based strategy document (spec.md §6).
type StrategySource interface {
	Load() (*Strategy, error)
}
