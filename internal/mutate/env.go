package mutate

import "github.com/execstatefuzzer/execstatefuzzer/pkg/types"

// toValueEnv adapts a mutation_context dict (as stateproj.Project
// produces it, flattened to map[string]any by internal/harness) into the
// typed environment the predicate evaluator expects. Values of a kind
// the evaluator can't represent as a scalar (set tuples) are simply
// omitted — a rule condition referencing them falls back to the
// evaluator's unknown-identifier default of zero, per spec.md §4.A.
func toValueEnv(ctx map[string]any) map[string]types.Value {
	env := make(map[string]types.Value, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case types.Value:
			env[k] = t
		case int64:
			env[k] = types.Value{Kind: types.KindInt, Int: t}
		case int:
			env[k] = types.Value{Kind: types.KindInt, Int: int64(t)}
		case float64:
			env[k] = types.Value{Kind: types.KindFloat, Float: t}
		case bool:
			env[k] = types.Value{Kind: types.KindBool, Bool: t}
		case string:
			env[k] = types.Value{Kind: types.KindString, Str: t}
		default:
			// []any (set tuples) and anything else: no scalar
			// representation, leave unset so lookups default to zero.
		}
	}
	return env
}
