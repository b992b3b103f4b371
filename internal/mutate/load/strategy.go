package load

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate"
)

// strategyDoc is the on-disk YAML shape for a mutation strategy file
// (spec.md §6 strategy file format).
type strategyDoc struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Name      string        `yaml:"name"`
	Condition *string       `yaml:"condition"`
	Operators []weightedDoc `yaml:"operators"`
}

type weightedDoc struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// UnmarshalYAML accepts an operator entry either as a [name, weight]
// pair or as a {name, weight} mapping.
func (w *weightedDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		type plain weightedDoc
		return n.Decode((*plain)(w))
	}
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		return fmt.Errorf("load: operator entry at line %d must be a [name, weight] pair", n.Line)
	}
	if err := n.Content[0].Decode(&w.Name); err != nil {
		return err
	}
	return n.Content[1].Decode(&w.Weight)
}

// FileStrategySource loads a Strategy from a YAML file on disk, in the
// teacher's ParseFile/Parse split (see internal/scenario.Parser).
type FileStrategySource struct {
	Path       string
	StrictMode bool
}

// NewFileStrategySource returns a StrategySource that reads path on
// every Load call, so Engine.Reload picks up on-disk edits. Matches the
// teacher's NewParser default: unknown YAML fields are ignored rather
// than rejected.
func NewFileStrategySource(path string) *FileStrategySource {
	return &FileStrategySource{Path: path}
}

// NewStrictFileStrategySource is the teacher's NewStrictParser
// equivalent: Load fails if the strategy file contains a field the
// schema doesn't recognize, catching typos like "codnition:" instead of
// silently leaving the rule unconditional.
func NewStrictFileStrategySource(path string) *FileStrategySource {
	return &FileStrategySource{Path: path, StrictMode: true}
}

func (s *FileStrategySource) Load() (*mutate.Strategy, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("load: reading strategy file %q: %w", s.Path, err)
	}
	return s.parse(data)
}

func (s *FileStrategySource) parse(data []byte) (*mutate.Strategy, error) {
	var doc strategyDoc
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	if s.StrictMode {
		decoder.KnownFields(true)
	}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("load: parsing strategy YAML: %w", err)
	}

	strat := &mutate.Strategy{Rules: make([]mutate.Rule, 0, len(doc.Rules))}
	for _, rd := range doc.Rules {
		ops := make([]mutate.WeightedOp, 0, len(rd.Operators))
		for _, od := range rd.Operators {
			ops = append(ops, mutate.WeightedOp{Name: od.Name, Weight: od.Weight})
		}
		strat.Rules = append(strat.Rules, mutate.Rule{
			Name:      rd.Name,
			Condition: rd.Condition,
			Operators: ops,
		})
	}
	return strat, nil
}
