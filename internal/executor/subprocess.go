package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// CoverageFiles names the on-disk artifacts an already-instrumented
// target binary is expected to (re)write on every run. Per spec.md's
// non-goals, instrumenting the target is out of scope; this is the
// file-based analog of the shared-memory bitmap a real instrumented
// binary (e.g. AFL-style) would expose via __AFL_SHM_ID. Any path left
// empty is simply skipped, leaving that part of the CoverageSample nil
// or empty.
type CoverageFiles struct {
	EdgeBitmapPath        string
	BranchTakenPath       string
	BranchFallthroughPath string
	InstructionAddrsPath  string // newline-separated hex addresses, e.g. "0x401020"
}

// SubprocessExecutor runs a local binary under `setarch <arch> -R`,
// matching original_source/subprocess_execution.py's invocation: -R
// disables ASLR so that two runs of the same input produce comparable
// instruction-address observations (spec.md §4.E, §6.1).
type SubprocessExecutor struct {
	BinaryPath string
	Arch       string // defaults to runtime.GOARCH's uname(2)-style name if empty
	ExtraArgs  []string
	MapSize    int
	Coverage   CoverageFiles
}

// NewSubprocessExecutor builds a SubprocessExecutor for binaryPath. Arch
// defaults to the host's uname machine string.
func NewSubprocessExecutor(binaryPath string) *SubprocessExecutor {
	return &SubprocessExecutor{BinaryPath: binaryPath, Arch: unameMachine(), MapSize: 65536}
}

func unameMachine() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return runtime.GOARCH
	}
}

// Execute feeds input to the binary's stdin and captures combined
// stdout+stderr, honoring ctx's deadline as the per-run timeout
// (spec.md's PER_RUN_TIMEOUT). Any non-zero exit, spawn failure, or
// deadline exceeded is reported via Result rather than as a Go error,
// so a single flaky target process never aborts a fuzzing campaign:
// internal/harness classifies a crashed run as CRASH and a timed-out
// run as TIMEOUT.
func (s *SubprocessExecutor) Execute(ctx context.Context, input []byte) (Result, error) {
	arch := s.Arch
	if arch == "" {
		arch = unameMachine()
	}
	args := append([]string{arch, "-R", s.BinaryPath}, s.ExtraArgs...)
	cmd := exec.CommandContext(ctx, "setarch", args...)
	cmd.Stdin = bytes.NewReader(input)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			Stdout:    out.Bytes(),
			Duration:  elapsed,
			TimedOut:  true,
			CrashInfo: fmt.Sprintf("execution exceeded per-run timeout: %v", ctx.Err()),
		}, nil
	}
	if err != nil {
		return Result{
			Stdout:    out.Bytes(),
			Duration:  elapsed,
			Crashed:   true,
			CrashInfo: err.Error(),
		}, nil
	}
	return Result{Stdout: out.Bytes(), Duration: elapsed, Coverage: s.readCoverage()}, nil
}

// readCoverage loads whatever bitmap/address-log files the target
// wrote this run, per CoverageFiles. A missing or short file simply
// yields a zero-valued/absent field rather than an error, since a
// target that isn't instrumented for a given artifact is expected to
// not produce it.
func (s *SubprocessExecutor) readCoverage() *types.CoverageSample {
	if s.Coverage == (CoverageFiles{}) {
		return nil
	}
	mapSize := s.MapSize
	if mapSize <= 0 {
		mapSize = 65536
	}
	sample := &types.CoverageSample{MapSize: mapSize}

	if s.Coverage.EdgeBitmapPath != "" {
		sample.EdgeBitmap = readBitmap(s.Coverage.EdgeBitmapPath, mapSize)
	}
	if s.Coverage.BranchTakenPath != "" {
		sample.BranchTaken = readBitmap(s.Coverage.BranchTakenPath, mapSize)
	}
	if s.Coverage.BranchFallthroughPath != "" {
		sample.BranchFallthrough = readBitmap(s.Coverage.BranchFallthroughPath, mapSize)
	}
	if s.Coverage.InstructionAddrsPath != "" {
		addrs, total := readInstructionAddrs(s.Coverage.InstructionAddrsPath)
		sample.InstructionAddrs = addrs
		sample.TotalInstructions = total
	}
	return sample
}

func readBitmap(path string, mapSize int) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if len(data) > mapSize {
		data = data[:mapSize]
	}
	return data
}

func readInstructionAddrs(path string) (map[uint64]struct{}, int64) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0
	}
	defer f.Close()

	addrs := make(map[uint64]struct{})
	var total int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		total++
		v, err := strconv.ParseUint(strings.TrimPrefix(line, "0x"), 16, 64)
		if err != nil {
			continue
		}
		addrs[v] = struct{}{}
	}
	return addrs, total
}
