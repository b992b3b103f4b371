package harness

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/execstatefuzzer/execstatefuzzer/internal/config"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// parseObservations scans stdout line by line for "name:" tokens
// declared in values, exactly as original_source/subprocess_execution.py's
// execute_binary does: for every declared name, look for the substring
// "<name>:" anywhere in the line, take the first whitespace-delimited
// token after it, and coerce it per the declared type. A coercion
// failure silently drops that one sample (ObservationParseError,
// spec.md §7) and parsing continues.
func parseObservations(stdout []byte, values []config.ValueSpec) map[string][]types.Value {
	byName := make(map[string]config.ValueSpec, len(values))
	for _, v := range values {
		byName[v.Name] = v
	}

	samples := make(map[string][]types.Value)
	for _, rawLine := range strings.Split(string(stdout), "\n") {
		line := strings.TrimSpace(rawLine)
		for name, spec := range byName {
			pattern := name + ":"
			idx := strings.Index(line, pattern)
			if idx < 0 {
				continue
			}
			valuePart := strings.TrimSpace(line[idx+len(pattern):])
			fields := strings.Fields(valuePart)
			token := valuePart
			if len(fields) > 0 {
				token = fields[0]
			}

			v, ok := coerce(token, valuePart, spec)
			if !ok {
				continue
			}
			samples[name] = append(samples[name], v)
		}
	}
	return samples
}

// coerce converts the raw token text into a typed types.Value per
// spec.Type. json specs use the full remainder of the line (valuePart)
// rather than the single token, since a JSON blob contains whitespace.
func coerce(token, valuePart string, spec config.ValueSpec) (types.Value, bool) {
	switch spec.Type {
	case "int":
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return types.Value{}, false
		}
		return types.Value{Kind: types.KindInt, Int: n}, true
	case "float":
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return types.Value{}, false
		}
		return types.Value{Kind: types.KindFloat, Float: f}, true
	case "bool":
		return types.Value{Kind: types.KindBool, Bool: coerceBool(token)}, true
	case "json":
		return coerceJSON(valuePart, spec.Path)
	default:
		return types.Value{Kind: types.KindString, Str: token}, true
	}
}

// coerceBool matches the original's int-or-truthy-word heuristic:
// a digit string coerces numerically (0 is false, anything else true),
// otherwise "true"/"yes"/"1" (case-insensitive) is true.
func coerceBool(token string) bool {
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return n != 0
	}
	switch strings.ToLower(token) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// coerceJSON extracts spec.Path from the JSON blob in valuePart using
// gjson (SPEC_FULL.md §6.3). A matched number becomes a KindFloat Value,
// a matched boolean a KindBool Value, and anything else a KindString
// Value carrying gjson's string rendering of the match.
func coerceJSON(valuePart, path string) (types.Value, bool) {
	if !gjson.Valid(valuePart) {
		return types.Value{}, false
	}
	result := gjson.Get(valuePart, path)
	if !result.Exists() {
		return types.Value{}, false
	}
	switch result.Type {
	case gjson.Number:
		return types.Value{Kind: types.KindFloat, Float: result.Float()}, true
	case gjson.True, gjson.False:
		return types.Value{Kind: types.KindBool, Bool: result.Bool()}, true
	default:
		return types.Value{Kind: types.KindString, Str: result.String()}, true
	}
}

// latestOf returns, for each observed name, the value of its last
// sample — the "latest_values" dict original_source builds before
// evaluating value/predicate items.
func latestOf(samples map[string][]types.Value) map[string]types.Value {
	latest := make(map[string]types.Value, len(samples))
	for name, vs := range samples {
		if len(vs) > 0 {
			latest[name] = vs[len(vs)-1]
		}
	}
	return latest
}
