package corpus

import (
	"testing"
	"time"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

func TestAddSample_FirstSampleIsInteresting(t *testing.T) {
	tr := New(1024, 0)
	sample := &types.CoverageSample{
		EdgeBitmap: bitAt(1024, 5),
	}
	if !tr.AddSample(sample, time.Millisecond) {
		t.Fatal("first coverage sample should be interesting")
	}
}

func TestAddSample_RepeatIsNotInteresting(t *testing.T) {
	tr := New(1024, 0)
	sample := &types.CoverageSample{EdgeBitmap: bitAt(1024, 5)}
	tr.AddSample(sample, time.Millisecond)
	if tr.AddSample(sample, time.Millisecond) {
		t.Fatal("identical sample should not be interesting the second time")
	}
}

func TestAddSample_NewInstructionAddrIsInteresting(t *testing.T) {
	tr := New(1024, 0)
	tr.AddSample(&types.CoverageSample{InstructionAddrs: map[uint64]struct{}{0x1000: {}}}, 0)
	interesting := tr.AddSample(&types.CoverageSample{InstructionAddrs: map[uint64]struct{}{0x2000: {}}}, 0)
	if !interesting {
		t.Fatal("new instruction address should be interesting")
	}
	if tr.Result().TotalUniqueInstructions != 2 {
		t.Fatalf("expected 2 unique instructions, got %d", tr.Result().TotalUniqueInstructions)
	}
}

func TestResult_Aggregates(t *testing.T) {
	tr := New(1024, 0)
	tr.AddSample(&types.CoverageSample{PathLenBlocks: 10, CallDepth: 2}, 0)
	tr.AddSample(&types.CoverageSample{PathLenBlocks: 30, CallDepth: 6}, 0)

	res := tr.Result()
	if res.AvgPathlenBlocks != 20 {
		t.Fatalf("expected avg pathlen 20, got %v", res.AvgPathlenBlocks)
	}
	if res.MaxPathlenBlocks != 30 {
		t.Fatalf("expected max pathlen 30, got %v", res.MaxPathlenBlocks)
	}
	if res.AvgCalldepth != 4 {
		t.Fatalf("expected avg calldepth 4, got %v", res.AvgCalldepth)
	}
	if res.MaxCalldepth != 6 {
		t.Fatalf("expected max calldepth 6, got %v", res.MaxCalldepth)
	}
}

func TestIsCoveragePlateau(t *testing.T) {
	tr := New(1024, 10*time.Millisecond)
	if tr.IsCoveragePlateau() {
		t.Fatal("no coverage recorded yet: should not report a plateau")
	}
	tr.AddSample(&types.CoverageSample{EdgeBitmap: bitAt(1024, 1)}, 0)
	if tr.IsCoveragePlateau() {
		t.Fatal("just recorded coverage: should not yet be a plateau")
	}
	time.Sleep(15 * time.Millisecond)
	if !tr.IsCoveragePlateau() {
		t.Fatal("expected a plateau after exceeding the timeout with no new coverage")
	}
}

func TestResetTimeSinceLastCoverage(t *testing.T) {
	tr := New(1024, 5*time.Millisecond)
	tr.AddSample(&types.CoverageSample{EdgeBitmap: bitAt(1024, 1)}, 0)
	time.Sleep(10 * time.Millisecond)
	if !tr.IsCoveragePlateau() {
		t.Fatal("expected plateau before reset")
	}
	tr.ResetTimeSinceLastCoverage()
	if tr.IsCoveragePlateau() {
		t.Fatal("expected plateau clock to be cleared by reset")
	}
}

func bitAt(size, idx int) []byte {
	b := make([]byte, size)
	b[idx] = 1
	return b
}
