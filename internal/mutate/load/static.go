// Package load provides OperatorSource and StrategySource implementations
// for internal/mutate.Engine: a closed, compiled-in operator registry, a
// Go-plugin-backed dynamic loader, and a YAML strategy-file reader
// (spec.md §6.7, §9 Design Notes option (a) vs (b)).
package load

import (
	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate"
	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate/opset"
)

// StaticSource wraps the compiled-in opset.Registry. This is the default
// operator source: no recompilation risk, no plugin ABI concerns.
type StaticSource struct{}

// NewStaticSource returns an OperatorSource backed by opset.Registry.
func NewStaticSource() StaticSource { return StaticSource{} }

func (StaticSource) Load() (map[string]mutate.Operator, error) {
	reg := opset.Registry()
	out := make(map[string]mutate.Operator, len(reg))
	for name, fn := range reg {
		out[name] = mutate.Operator(fn)
	}
	return out, nil
}
