// Package config handles configuration loading for execstatefuzzer,
// grounded on the teacher's own internal/config.Config structure and
// internal/scenario.Parser's YAML loading style, generalized from the
// teacher's HTTP-target fields to the fuzz run document spec.md §2/§6
// describe.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the top-level run document: target binary, per-run
// timeout, the execution_values/execution_state/mutation_context
// specs, seed inputs, and the coverage plateau timeout.
type RunConfig struct {
	Target TargetConfig `yaml:"target"`
	Fuzzer FuzzerConfig `yaml:"fuzzer"`

	CoveragePlateauTimeoutSeconds int `yaml:"coverage_plateau_timeout_seconds"`
}

// TargetConfig names what's being fuzzed: either a local binary path
// (SubprocessExecutor) or, as a domain-stack extension, an HTTP URL
// (HTTPExecutor) — exactly one should be set.
type TargetConfig struct {
	BinaryPath string `yaml:"binary_path"`
	URL        string `yaml:"url"`
}

// FuzzerConfig holds the per-run timeout and the three item specs.
type FuzzerConfig struct {
	PerRunTimeout   float64     `yaml:"per_run_timeout"`
	ExecutionValues []ValueSpec `yaml:"execution_values"`
	ExecutionState  []ItemSpec  `yaml:"execution_state"`
	MutationContext []ItemSpec  `yaml:"mutation_context"`
	SeedInputs      []string    `yaml:"seed_inputs"`
}

// ValueSpec declares one observation name and its scalar type
// (int|float|bool|string|json — the last a domain-stack extension, §6.3).
type ValueSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Path is the gjson path extracted from the JSON blob following the
	// "name:" token, only meaningful when Type == "json".
	Path string `yaml:"path"`
}

// ItemSpec declares one execution_state or mutation_context item:
// value/sum/set reference Name; predicate/counter reference Expr.
type ItemSpec struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// DefaultRunConfig mirrors the teacher's config.DefaultConfig pattern:
// sensible zero-value fallbacks rather than requiring every field.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Fuzzer: FuzzerConfig{
			PerRunTimeout: 5.0,
		},
		CoveragePlateauTimeoutSeconds: 300,
	}
}

// Load reads and parses a RunConfig from path.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	cfg := DefaultRunConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return cfg, nil
}

// PerRunTimeoutDuration converts the fractional-seconds timeout field
// into a time.Duration for context.WithTimeout.
func (f FuzzerConfig) PerRunTimeoutDuration() time.Duration {
	return time.Duration(f.PerRunTimeout * float64(time.Second))
}

// DecodedSeedInputs decodes each seed_inputs entry's backslash escapes
// (\n \t \r \\ \' \" \xHH), matching the byte-string literal escapes
// internal/predicate's lexer accepts, since both consume the same
// seed-corpus byte-string convention.
func (f FuzzerConfig) DecodedSeedInputs() ([][]byte, error) {
	out := make([][]byte, 0, len(f.SeedInputs))
	for _, s := range f.SeedInputs {
		decoded, err := decodeEscapes(s)
		if err != nil {
			return nil, fmt.Errorf("config: decoding seed input %q: %w", s, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

func decodeEscapes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '\\':
			out = append(out, '\\')
		case '\'':
			out = append(out, '\'')
		case '"':
			out = append(out, '"')
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("truncated \\x escape")
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid \\x escape %q: %w", s[i+1:i+3], err)
			}
			out = append(out, byte(v))
			i += 2
		default:
			return nil, fmt.Errorf("unknown escape \\%c", s[i])
		}
	}
	return out, nil
}
