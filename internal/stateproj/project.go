package stateproj

import (
	"sort"

	"github.com/execstatefuzzer/execstatefuzzer/internal/predicate"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Dict is the state dict produced by Project: display key -> computed
// value. Values are int64 (sum/predicate/counter), the raw sample type
// (value), or []any (set).
type Dict map[string]any

// Project implements spec.md §4.B.1: for each item in spec, compute its
// value from samples (ordered per-name observation lists) and latest
// (last-observed value per name), skipping value/sum items whose name
// was never observed.
func Project(spec []Item, samples map[string][]types.Value, latest map[string]types.Value) Dict {
	dict := make(Dict, len(spec))
	for _, item := range spec {
		switch item.Kind {
		case KindValue:
			if v, ok := latest[item.Name]; ok {
				dict[item.Name] = v
			}
		case KindSum:
			vs, ok := samples[item.Name]
			if !ok {
				continue
			}
			var total int64
			for _, v := range vs {
				n, err := v.Int64()
				if err != nil {
					continue // ObservationParseError: skip the one sample, keep summing
				}
				total += n
			}
			dict[item.Name] = total
		case KindPredicate:
			env := predicate.NewEnv(toEnvMap(latest))
			dict[item.Expr] = boolToInt64(predicate.Truth(item.Expr, env))
		case KindCounter:
			dict[item.Expr] = countSteps(item.Expr, samples)
		case KindSet:
			if vs, ok := samples[item.Name]; ok {
				dict[item.Name] = canonicalSet(vs)
			}
		}
	}
	return dict
}

// Canonicalize implements spec.md §4.B.2: flatten dict into the
// order-preserving, labeled tuple used as a hash key. Items absent from
// dict are silently skipped so sparse states don't perturb identity.
func Canonicalize(spec []Item, dict Dict) types.ExecutionState {
	out := make(types.ExecutionState, 0, len(spec))
	for _, item := range spec {
		key := item.DisplayKey()
		v, ok := dict[key]
		if !ok {
			continue
		}
		out = append(out, types.StatePair{Label: item.label(), Value: normalizeForTuple(v)})
	}
	return out
}

// normalizeForTuple renders dict values into comparable, hashable form
// for ExecutionState.Equal: typed observation values collapse to their
// Canon() representation, []any set tuples stay as []any.
func normalizeForTuple(v any) any {
	switch t := v.(type) {
	case types.Value:
		return t.Canon()
	case []any:
		return t
	default:
		return t
	}
}

func countSteps(expr string, samples map[string][]types.Value) int64 {
	maxLen := 0
	for _, vs := range samples {
		if len(vs) > maxLen {
			maxLen = len(vs)
		}
	}
	var count int64
	for i := 0; i < maxLen; i++ {
		step := make(map[string]types.Value)
		for name, vs := range samples {
			if i < len(vs) {
				step[name] = vs[i]
			}
		}
		env := predicate.NewEnv(toEnvMap(step))
		if predicate.Truth(expr, env) {
			count++
		}
	}
	return count
}

// canonicalSet implements the `set` item: canonicalize each sample
// (bytes as-is, ints as-is, everything else stringified), dedupe, sort,
// and return the ordered, unique tuple.
func canonicalSet(values []types.Value) []any {
	seen := make(map[string]struct{}, len(values))
	var out []any
	for _, v := range values {
		canon := v.Canon()
		key := dedupeKey(canon)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canon)
	}
	sort.Slice(out, func(i, j int) bool { return lessCanon(out[i], out[j]) })
	return out
}

func dedupeKey(v any) string {
	switch t := v.(type) {
	case int64:
		return "i:" + itoa(t)
	case string:
		return "s:" + t
	default:
		return "s:" + itoa(0)
	}
}

// lessCanon gives set members a deterministic total order: ints compare
// numerically among themselves, strings compare lexically among
// themselves, and ints sort before strings when the set mixes kinds
// (observation specs in practice never do, but the ordering still must
// be total for sort.Slice).
func lessCanon(a, b any) bool {
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		return ai < bi
	}
	if aIsInt != bIsInt {
		return aIsInt
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return as < bs
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func toEnvMap(m map[string]types.Value) map[string]types.Value { return m }

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
