// Package executor runs a single fuzzing input against a target and
// reports raw stdout plus timing, per spec.md §4.E. Two backends are
// provided: SubprocessExecutor (grounded on original_source's
// `setarch <arch> -R <binary>` subprocess invocation) and HTTPExecutor,
// a domain-stack extension for fuzzing an HTTP service instead of a
// local binary, grounded on the teacher's internal/requester client.
package executor

import (
	"context"
	"time"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Result is the raw outcome of one execution: whatever bytes the
// target wrote to stdout (or, for HTTPExecutor, the response body),
// how long it took, whether the run should be treated as a crash or
// timeout, and whatever coverage artifacts the target's own
// instrumentation produced. Per spec.md's non-goals, instrumenting the
// target is out of scope here — Coverage is populated by reading
// whatever bitmap/address-log files an already-instrumented binary
// wrote, not by injecting instrumentation ourselves (see
// SubprocessExecutor.CoverageFiles). internal/harness turns this into a
// types.ExecutionResult by additionally parsing Stdout and projecting
// state.
type Result struct {
	Stdout    []byte
	Duration  time.Duration
	Crashed   bool
	TimedOut  bool
	CrashInfo string
	Coverage  *types.CoverageSample
}

// Executor runs input against a target once. Implementations must
// respect ctx cancellation/deadline as the per-run timeout.
type Executor interface {
	Execute(ctx context.Context, input []byte) (Result, error)
}
