package stateproj

import (
	"reflect"
	"testing"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

func intSample(n int64) types.Value { return types.Value{Kind: types.KindInt, Int: n} }

func TestProject_ValueRoundTrip(t *testing.T) {
	spec := []Item{{Kind: KindValue, Name: "x"}}
	latest := map[string]types.Value{"x": intSample(42)}
	dict := Project(spec, nil, latest)
	if dict["x"].(types.Value).Int != 42 {
		t.Fatalf("expected x=42, got %#v", dict["x"])
	}
	tuple := Canonicalize(spec, dict)
	want := types.ExecutionState{{Label: "x (value)", Value: int64(42)}}
	if !tuple.Equal(want) {
		t.Fatalf("tuple mismatch: got %#v want %#v", tuple, want)
	}
}

func TestProject_ValueOmittedWhenAbsent(t *testing.T) {
	spec := []Item{{Kind: KindValue, Name: "missing"}}
	dict := Project(spec, nil, nil)
	if _, ok := dict["missing"]; ok {
		t.Fatal("expected absent name to be omitted from dict")
	}
	tuple := Canonicalize(spec, dict)
	if len(tuple) != 0 {
		t.Fatalf("expected empty tuple, got %#v", tuple)
	}
}

func TestProject_SetCanonicalization(t *testing.T) {
	spec := []Item{{Kind: KindSet, Name: "e"}}
	samples := map[string][]types.Value{"e": {intSample(3), intSample(1), intSample(2), intSample(1)}}
	dict := Project(spec, samples, nil)
	got := dict["e"].([]any)
	want := []any{int64(1), int64(2), int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
	tuple := Canonicalize(spec, dict)
	if tuple[0].Label != "e (set)" {
		t.Fatalf("unexpected label %q", tuple[0].Label)
	}
}

func TestProject_CounterSemantics(t *testing.T) {
	spec := []Item{{Kind: KindCounter, Expr: "a and b"}}
	samples := map[string][]types.Value{
		"a": {intSample(1), intSample(0), intSample(1)},
		"b": {intSample(0), intSample(0), intSample(1)},
	}
	dict := Project(spec, samples, nil)
	if dict["a and b"].(int64) != 1 {
		t.Fatalf("expected count 1, got %v", dict["a and b"])
	}
	tuple := Canonicalize(spec, dict)
	want := types.ExecutionState{{Label: "a and b (count)", Value: int64(1)}}
	if !tuple.Equal(want) {
		t.Fatalf("tuple mismatch: %#v", tuple)
	}
}

func TestProject_PredicateAsZeroOrOne(t *testing.T) {
	spec := []Item{{Kind: KindPredicate, Expr: "x > 3"}}
	latest := map[string]types.Value{"x": intSample(5)}
	dict := Project(spec, nil, latest)
	if dict["x > 3"].(int64) != 1 {
		t.Fatalf("expected 1, got %v", dict["x > 3"])
	}
}

func TestProject_PredicateAlwaysPresentEvenWhenEmpty(t *testing.T) {
	spec := []Item{{Kind: KindPredicate, Expr: "missing > 3"}}
	dict := Project(spec, nil, nil)
	if _, ok := dict["missing > 3"]; !ok {
		t.Fatal("predicate key must always be present")
	}
	if dict["missing > 3"].(int64) != 0 {
		t.Fatalf("expected 0 for unmatched predicate, got %v", dict["missing > 3"])
	}
}

func TestProject_SumSkipsUncoercibleSamples(t *testing.T) {
	spec := []Item{{Kind: KindSum, Name: "n"}}
	samples := map[string][]types.Value{
		"n": {intSample(1), {Kind: types.KindString, Str: "not-a-number"}, intSample(2)},
	}
	dict := Project(spec, samples, nil)
	if dict["n"].(int64) != 3 {
		t.Fatalf("expected sum 3 skipping bad sample, got %v", dict["n"])
	}
}

func TestCanonicalize_Deterministic(t *testing.T) {
	spec := []Item{{Kind: KindSet, Name: "e"}, {Kind: KindValue, Name: "x"}}
	samples := map[string][]types.Value{"e": {intSample(2), intSample(1)}}
	latest := map[string]types.Value{"x": intSample(7)}

	a := Canonicalize(spec, Project(spec, samples, latest))
	b := Canonicalize(spec, Project(spec, samples, latest))
	if !a.Equal(b) {
		t.Fatalf("expected deterministic canonicalization, got %#v vs %#v", a, b)
	}
}
