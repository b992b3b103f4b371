package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/execstatefuzzer/execstatefuzzer/internal/config"
	"github.com/execstatefuzzer/execstatefuzzer/internal/executor"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

type fakeExecutor struct {
	res executor.Result
	err error
}

func (f fakeExecutor) Execute(ctx context.Context, input []byte) (executor.Result, error) {
	return f.res, f.err
}

func testConfig() *config.RunConfig {
	cfg := config.DefaultRunConfig()
	cfg.Fuzzer.ExecutionValues = []config.ValueSpec{
		{Name: "status", Type: "int"},
		{Name: "mode", Type: "string"},
	}
	cfg.Fuzzer.ExecutionState = []config.ItemSpec{
		{Type: "value", Name: "status"},
		{Type: "predicate", Expr: "status == 1"},
	}
	return cfg
}

func TestRun_NormalParsesStateFromStdout(t *testing.T) {
	exec := fakeExecutor{res: executor.Result{
		Stdout:   []byte("status: 1\nmode: alpha\n"),
		Duration: time.Millisecond,
	}}
	res := Run(context.Background(), exec, []byte("in"), testConfig())
	if res.Outcome != types.Normal {
		t.Fatalf("expected Normal outcome, got %v", res.Outcome)
	}
	if len(res.ExecutionState) != 2 {
		t.Fatalf("expected 2 state pairs, got %d: %+v", len(res.ExecutionState), res.ExecutionState)
	}
	if res.ExecutionState[1].Label != "status == 1" || res.ExecutionState[1].Value != int64(1) {
		t.Fatalf("expected predicate to fire, got %+v", res.ExecutionState[1])
	}
}

func TestRun_ExecutorErrorBecomesCrash(t *testing.T) {
	exec := fakeExecutor{err: errors.New("spawn failed")}
	res := Run(context.Background(), exec, []byte("in"), testConfig())
	if res.Outcome != types.Crash {
		t.Fatalf("expected Crash outcome on executor error, got %v", res.Outcome)
	}
	if len(res.ExecutionState) != 0 {
		t.Fatalf("expected empty state on crash, got %+v", res.ExecutionState)
	}
}

func TestRun_ExecutorTimeout(t *testing.T) {
	exec := fakeExecutor{res: executor.Result{TimedOut: true, CrashInfo: "deadline exceeded"}}
	res := Run(context.Background(), exec, []byte("in"), testConfig())
	if res.Outcome != types.Timeout {
		t.Fatalf("expected Timeout outcome, got %v", res.Outcome)
	}
}

func TestRun_MissingObservationOmitsValueItem(t *testing.T) {
	exec := fakeExecutor{res: executor.Result{Stdout: []byte("mode: alpha\n")}}
	res := Run(context.Background(), exec, []byte("in"), testConfig())
	if len(res.ExecutionState) != 1 {
		t.Fatalf("expected only the predicate item (status absent), got %+v", res.ExecutionState)
	}
	if res.ExecutionState[0].Label != "status == 1" || res.ExecutionState[0].Value != int64(0) {
		t.Fatalf("expected predicate to default to false when status is unobserved, got %+v", res.ExecutionState[0])
	}
}
