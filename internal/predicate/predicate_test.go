package predicate

import (
	"testing"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

func env(vars map[string]types.Value) Env {
	return NewEnv(vars)
}

func TestTruth_Comparison(t *testing.T) {
	e := env(map[string]types.Value{"x": {Kind: types.KindInt, Int: 5}})
	if !Truth("x > 3", e) {
		t.Error("expected x > 3 to be true")
	}
	if Truth("x > 10", e) {
		t.Error("expected x > 10 to be false")
	}
}

func TestTruth_UnknownIdentDefaultsZero(t *testing.T) {
	e := env(nil)
	if !Truth("missing == 0", e) {
		t.Error("unknown identifier should default to zero")
	}
}

func TestTruth_BooleanCombinators(t *testing.T) {
	e := env(map[string]types.Value{
		"a": {Kind: types.KindInt, Int: 1},
		"b": {Kind: types.KindInt, Int: 0},
	})
	if !Truth("a and not b", e) {
		t.Error("expected 'a and not b' to be true")
	}
	if !Truth("a or b", e) {
		t.Error("expected 'a or b' to be true")
	}
	if Truth("a and b", e) {
		t.Error("expected 'a and b' to be false")
	}
}

func TestEval_DivisionByZeroIsError(t *testing.T) {
	_, err := Eval("1 / 0", env(nil))
	if err == nil {
		t.Fatal("expected division-by-zero error")
	}
}

func TestTruth_DivisionByZeroIsFalse(t *testing.T) {
	if Truth("1 / 0 > 0", env(nil)) {
		t.Error("evaluation error should be treated as false")
	}
}

func TestEval_TypeMismatchIsError(t *testing.T) {
	e := env(map[string]types.Value{"s": {Kind: types.KindString, Str: "abc"}})
	if _, err := Eval("s - 1", e); err == nil {
		t.Fatal("expected type-mismatch error")
	}
}

func TestTruth_Membership(t *testing.T) {
	e := env(map[string]types.Value{"code": {Kind: types.KindInt, Int: 404}})
	if !Truth("code in (200, 404, 500)", e) {
		t.Error("expected membership match")
	}
	if Truth("code in (200, 301)", e) {
		t.Error("expected no membership match")
	}
}

func TestTruth_Contains(t *testing.T) {
	e := env(map[string]types.Value{"s": {Kind: types.KindString, Str: "hello world"}})
	if !Truth(`s contains "world"`, e) {
		t.Error("expected substring match")
	}
	if Truth(`s contains "xyz"`, e) {
		t.Error("expected no substring match")
	}
}

func TestTruth_Arithmetic(t *testing.T) {
	e := env(map[string]types.Value{"n": {Kind: types.KindInt, Int: 10}})
	if !Truth("n + 5 == 15", e) {
		t.Error("expected arithmetic equality")
	}
	if !Truth("(n - 2) * 2 == 16", e) {
		t.Error("expected grouped arithmetic")
	}
}

func TestValidate_RejectsMalformedExpression(t *testing.T) {
	if err := Validate("x >"); err == nil {
		t.Fatal("expected parse error for incomplete expression")
	}
}

func TestResult_IntIsZeroOrOne(t *testing.T) {
	r, err := Eval("3 > 1", env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if r.Int() != 1 {
		t.Errorf("expected 1, got %d", r.Int())
	}
}

func TestTruth_StringLiteralEscapes(t *testing.T) {
	e := env(map[string]types.Value{"s": {Kind: types.KindString, Str: "a\tb"}})
	if !Truth(`s == "a\tb"`, e) {
		t.Error("expected escaped tab to match")
	}
}
