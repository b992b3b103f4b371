// Package harness runs one execution of a fuzz input end to end: invoke
// an executor, parse its stdout into typed observation samples, and
// project execution_state / mutation_context, per spec.md §4.E.
package harness

import (
	"context"

	"github.com/execstatefuzzer/execstatefuzzer/internal/config"
	"github.com/execstatefuzzer/execstatefuzzer/internal/executor"
	"github.com/execstatefuzzer/execstatefuzzer/internal/stateproj"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Run invokes exec against input under cfg's per-run timeout, parses
// its output, and returns the extended ExecutionResult. An executor
// error or a crashed run (spawn error, non-zero exit) becomes outcome
// CRASH and a timed-out run becomes outcome TIMEOUT, both with an empty
// state and context; no executor failure aborts the caller.
func Run(ctx context.Context, exec executor.Executor, input []byte, cfg *config.RunConfig) types.ExecutionResult {
	runCtx := ctx
	var cancel context.CancelFunc
	if d := cfg.Fuzzer.PerRunTimeoutDuration(); d > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := exec.Execute(runCtx, input)
	if err != nil {
		return types.ExecutionResult{
			InputData: input,
			Outcome:   types.Crash,
			CrashInfo: err.Error(),
		}
	}
	if res.TimedOut {
		return types.ExecutionResult{
			InputData:     input,
			Outcome:       types.Timeout,
			ExecutionTime: res.Duration,
			CrashInfo:     res.CrashInfo,
			Stdout:        res.Stdout,
			Coverage:      res.Coverage,
		}
	}
	if res.Crashed {
		return types.ExecutionResult{
			InputData:     input,
			Outcome:       types.Crash,
			ExecutionTime: res.Duration,
			CrashInfo:     res.CrashInfo,
			Stdout:        res.Stdout,
			Coverage:      res.Coverage,
		}
	}

	samples := parseObservations(res.Stdout, cfg.Fuzzer.ExecutionValues)
	latest := latestOf(samples)

	stateSpec := toItems(cfg.Fuzzer.ExecutionState)
	ctxSpec := toItems(cfg.Fuzzer.MutationContext)

	stateDict := stateproj.Project(stateSpec, samples, latest)
	executionState := stateproj.Canonicalize(stateSpec, stateDict)
	mutationContext := stateproj.Project(ctxSpec, samples, latest)

	return types.ExecutionResult{
		InputData:       input,
		Outcome:         types.Normal,
		ExecutionTime:   res.Duration,
		ExecutionState:  executionState,
		MutationContext: dictToAny(mutationContext),
		Stdout:          res.Stdout,
		Coverage:        res.Coverage,
	}
}

func toItems(specs []config.ItemSpec) []stateproj.Item {
	out := make([]stateproj.Item, 0, len(specs))
	for _, s := range specs {
		out = append(out, stateproj.Item{
			Kind: stateproj.Kind(s.Type),
			Name: s.Name,
			Expr: s.Expr,
		})
	}
	return out
}

func dictToAny(d stateproj.Dict) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
