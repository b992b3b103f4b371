package load

import (
	"fmt"
	"plugin"

	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate"
)

// PluginSource loads operators from a Go plugin (built with
// `go build -buildmode=plugin`) for users who need to extend the
// operator set without recompiling the core fuzzer (spec.md §6.7,
// §9 Design Notes option (b)). The plugin must export a symbol named
// "Operators" of type func() map[string]func([]byte, map[string]any)
// ([]byte, error).
type PluginSource struct {
	Path string
}

// NewPluginSource returns an OperatorSource backed by the .so file at path.
func NewPluginSource(path string) PluginSource {
	return PluginSource{Path: path}
}

const pluginSymbol = "Operators"

func (s PluginSource) Load() (map[string]mutate.Operator, error) {
	p, err := plugin.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("load: opening operator plugin %q: %w", s.Path, err)
	}
	sym, err := p.Lookup(pluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("load: plugin %q missing symbol %q: %w", s.Path, pluginSymbol, err)
	}
	factory, ok := sym.(func() map[string]func([]byte, map[string]any) ([]byte, error))
	if !ok {
		return nil, fmt.Errorf("load: plugin %q symbol %q has unexpected type", s.Path, pluginSymbol)
	}
	raw := factory()
	out := make(map[string]mutate.Operator, len(raw))
	for name, fn := range raw {
		out[name] = mutate.Operator(fn)
	}
	return out, nil
}
