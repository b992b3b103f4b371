// Package corpus implements the corpus-wide coverage and statistics
// tracker described in spec.md §4.D: merged AFL-style bitmaps, a running
// instruction-address set, path-length/call-depth aggregates, and
// coverage-plateau detection. Grounded on the teacher's
// internal/coverage.CoverageMap/CoverageTracker, generalized from a
// single hit-count bitmap to the three bitmaps (edge, branch-taken,
// branch-fallthrough) spec.md's CoverageSample carries.
package corpus

import (
	"sync"
	"time"

	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Tracker aggregates coverage across every execution fed into it. Its
// mutex is exported-by-convention via the Lock/Unlock passthrough so
// internal/fuzzloop can serialize a read-modify-write sequence (e.g.
// "add sample, then decide whether this run was interesting") across
// multiple goroutines without a second lock layered on top.
type Tracker struct {
	mu sync.Mutex

	mapSize int

	edgeBitmap        []byte
	branchTaken       []byte
	branchFallthrough []byte
	instructionAddrs  map[uint64]struct{}

	sampleCount      int64
	pathLenSum       int64
	pathLenMax       int64
	callDepthSum     int64
	callDepthMax     int64
	totalExecTime    time.Duration

	lastCoverageTime     time.Time
	plateauTimeout       time.Duration
	hasRecordedCoverage  bool
}

// New creates a Tracker with the given bitmap size (spec.md's MAP_SIZE)
// and plateau timeout (0 disables plateau detection).
func New(mapSize int, plateauTimeout time.Duration) *Tracker {
	if mapSize <= 0 {
		mapSize = 65536
	}
	return &Tracker{
		mapSize:           mapSize,
		edgeBitmap:        make([]byte, mapSize),
		branchTaken:       make([]byte, mapSize),
		branchFallthrough: make([]byte, mapSize),
		instructionAddrs:  make(map[uint64]struct{}),
		plateauTimeout:    plateauTimeout,
		lastCoverageTime:  time.Now(),
	}
}

// Lock and Unlock expose the tracker's mutex. AddSample does not take
// it itself, so callers sharing the tracker across goroutines hold it
// around AddSample; every other method takes it internally and must not
// be called while it is held.
func (t *Tracker) Lock()   { t.mu.Lock() }
func (t *Tracker) Unlock() { t.mu.Unlock() }

// AddSample merges one execution's coverage into the corpus aggregate
// and updates the running statistics. It reports whether the sample
// introduced any new edge, branch-taken, or branch-fallthrough bit, or
// any new instruction address — the corpus-novelty signal spec.md §4.D
// defines "interesting" by. The caller holds Lock when other goroutines
// use the tracker concurrently.
func (t *Tracker) AddSample(sample *types.CoverageSample, execTime time.Duration) (interesting bool) {
	t.sampleCount++
	t.totalExecTime += execTime

	if sample == nil {
		return false
	}

	if mergeOr(t.edgeBitmap, sample.EdgeBitmap) {
		interesting = true
	}
	if mergeOr(t.branchTaken, sample.BranchTaken) {
		interesting = true
	}
	if mergeOr(t.branchFallthrough, sample.BranchFallthrough) {
		interesting = true
	}
	for addr := range sample.InstructionAddrs {
		if _, seen := t.instructionAddrs[addr]; !seen {
			t.instructionAddrs[addr] = struct{}{}
			interesting = true
		}
	}

	t.pathLenSum += sample.PathLenBlocks
	if sample.PathLenBlocks > t.pathLenMax {
		t.pathLenMax = sample.PathLenBlocks
	}
	t.callDepthSum += sample.CallDepth
	if sample.CallDepth > t.callDepthMax {
		t.callDepthMax = sample.CallDepth
	}

	if interesting {
		t.lastCoverageTime = time.Now()
		t.hasRecordedCoverage = true
	}
	return interesting
}

// mergeOr ORs src's bits into dst (same-length byte-for-byte OR, unlike
// the teacher's hit-count saturating-add merge, since spec.md's bitmaps
// are presence bitmaps, not hit-count histograms) and reports whether
// any new bit was set.
func mergeOr(dst, src []byte) bool {
	if len(src) == 0 {
		return false
	}
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	newBits := false
	for i := 0; i < n; i++ {
		merged := dst[i] | src[i]
		if merged != dst[i] {
			newBits = true
		}
		dst[i] = merged
	}
	return newBits
}

// Result computes the on-demand aggregate statistics spec.md §4.D's
// get_stats operation reports.
func (t *Tracker) Result() types.CorpusStatResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resultLocked()
}

func (t *Tracker) resultLocked() types.CorpusStatResult {
	res := types.CorpusStatResult{
		TotalEdges:              countSet(t.edgeBitmap),
		TotalBranchSites:        countSetOr(t.branchTaken, t.branchFallthrough),
		TotalUniqueInstructions: len(t.instructionAddrs),
		MaxPathlenBlocks:        t.pathLenMax,
		MaxCalldepth:            t.callDepthMax,
	}
	if t.sampleCount > 0 {
		res.AvgPathlenBlocks = float64(t.pathLenSum) / float64(t.sampleCount)
		res.AvgCalldepth = float64(t.callDepthSum) / float64(t.sampleCount)
	}
	return res
}

func countSet(bitmap []byte) int {
	n := 0
	for _, b := range bitmap {
		if b != 0 {
			n++
		}
	}
	return n
}

// countSetOr counts positions where either aligned bitmap has a set
// byte — a branch site is "taken" if it was ever taken OR fell through,
// counted once even when a campaign observed both (spec.md §4.D,
// corpus_stat_tracker.py: sum(1 for bt, bf in zip(...) if bt or bf)).
func countSetOr(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	count := 0
	for i := 0; i < n; i++ {
		if a[i] != 0 || b[i] != 0 {
			count++
		}
	}
	return count
}

// IsCoveragePlateau reports whether the corpus has gone longer than the
// configured plateau timeout without any new coverage (spec.md §4.D).
// Returns false when no timeout was configured or no coverage has ever
// been recorded (nothing to plateau from yet).
func (t *Tracker) IsCoveragePlateau() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.plateauTimeout <= 0 || !t.hasRecordedCoverage {
		return false
	}
	return time.Since(t.lastCoverageTime) >= t.plateauTimeout
}

// TimeSinceLastCoverage reports how long it has been since the last
// interesting sample, for dashboards.
func (t *Tracker) TimeSinceLastCoverage() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.lastCoverageTime)
}

// ResetTimeSinceLastCoverage re-arms the plateau clock, e.g. after an
// operator switch the fuzz loop wants a fresh observation window for.
func (t *Tracker) ResetTimeSinceLastCoverage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCoverageTime = time.Now()
}

// SampleCount reports the number of AddSample calls seen so far.
func (t *Tracker) SampleCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleCount
}

// TotalExecTime reports cumulative execution time across every sample.
func (t *Tracker) TotalExecTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalExecTime
}
