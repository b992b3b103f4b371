package predicate

import "github.com/execstatefuzzer/execstatefuzzer/pkg/types"

// Env maps identifier names to their current value for one evaluation.
// Evaluation never mutates Env.
type Env map[string]value

// NewEnv builds an Env from an observation environment expressed in
// terms of pkg/types.Value, the shape internal/stateproj and
// internal/harness already work with.
func NewEnv(vars map[string]types.Value) Env {
	env := make(Env, len(vars))
	for k, v := range vars {
		env[k] = fromTypesValue(v)
	}
	return env
}

func fromTypesValue(v types.Value) value {
	switch v.Kind {
	case types.KindInt:
		return intVal(v.Int)
	case types.KindFloat:
		return floatVal(v.Float)
	case types.KindBool:
		return boolVal(v.Bool)
	default:
		if v.Bytes != nil {
			return stringVal(string(v.Bytes))
		}
		return stringVal(v.Str)
	}
}

// Truth evaluates expr over env and returns whether it is truthy. Per
// spec.md §4.A, an evaluation error (division by zero, a type mismatch)
// is treated as false by every caller that uses expr as a boolean gate
// (rule conditions at runtime, `predicate` and `counter` state items).
func Truth(expr string, env Env) bool {
	r, err := Eval(expr, env)
	if err != nil {
		return false
	}
	return r.Bool()
}

// Eval parses and evaluates expr over env, returning the raw result and
// any parse/evaluation error. Division by zero and type mismatches
// surface here as errors; Truth is the caller most production code
// wants.
func Eval(expr string, env Env) (Result, error) {
	n, err := parse(expr)
	if err != nil {
		return Result{}, err
	}
	v, err := n.eval(env)
	if err != nil {
		return Result{}, err
	}
	return Result{v}, nil
}

// Validate parses expr without evaluating it, for eager validation at
// strategy-load time (spec.md §4.C: rule conditions are checked before
// mutation begins).
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// Result wraps an evaluated value so callers outside this package never
// touch the unexported AST value type directly.
type Result struct{ v value }

// Bool reports the truthiness of the result, per the language's
// coercion rules (zero/empty is false).
func (r Result) Bool() bool { return r.v.truthy() }

// Int renders the result as 0/1 for `predicate` and `counter` state
// items, which always report an integer count or flag.
func (r Result) Int() int64 {
	if r.v.truthy() {
		return 1
	}
	return 0
}
