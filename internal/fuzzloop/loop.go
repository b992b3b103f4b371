// Package fuzzloop wires the outer fuzzing driver described in spec.md
// §2 — executor → projector → tracker → mutation engine → next input —
// and is the one place concurrency is introduced (spec.md §5):
// concurrent executor dispatch via a github.com/panjf2000/ants/v2 pool,
// grounded on the teacher's internal/requester.WorkerPool, folding
// results into internal/corpus.Tracker and internal/mutate.Engine under
// the mutexes those types expose.
package fuzzloop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/execstatefuzzer/execstatefuzzer/internal/config"
	"github.com/execstatefuzzer/execstatefuzzer/internal/corpus"
	"github.com/execstatefuzzer/execstatefuzzer/internal/executor"
	"github.com/execstatefuzzer/execstatefuzzer/internal/harness"
	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate"
	"github.com/execstatefuzzer/execstatefuzzer/pkg/types"
)

// Options configures a Loop.
type Options struct {
	Workers           int
	MutationsPerInput int
	MaxExecutions     int64
	Budget            time.Duration
}

// DefaultOptions mirrors the teacher's DefaultWorkerPoolOptions/
// DefaultFeedbackConfig sizing choices.
func DefaultOptions() Options {
	return Options{
		Workers:           50,
		MutationsPerInput: 10,
		MaxExecutions:     1_000_000,
		Budget:            time.Hour,
	}
}

// Stats mirrors the teacher's FeedbackStats shape, generalized to this
// domain's outcome classes.
type Stats struct {
	Executions        int64
	InterestingInputs int64
	Crashes           int64
	Timeouts          int64
	StartTime         time.Time
	LastInterestingAt time.Time
}

// Loop drives the fuzzing campaign: it owns the corpus queue, the
// coverage tracker, and the mutation engine, and dispatches concurrent
// executions through an ants pool.
type Loop struct {
	cfg     *config.RunConfig
	exec    executor.Executor
	engine  *mutate.Engine
	tracker *corpus.Tracker
	opts    Options
	logger  *slog.Logger

	pool *ants.Pool
	wg   sync.WaitGroup

	queueMu sync.Mutex
	queue   []queueEntry

	crashMu sync.Mutex
	crashes []CrashRecord

	// statsMu guards stats.LastInterestingAt, the one Stats field that
	// isn't a plain counter and so can't be updated with atomic.Add.
	statsMu sync.Mutex
	stats   Stats

	execCount int64
}

// CrashRecord is one observed crashing or timing-out input.
type CrashRecord struct {
	Input     []byte
	CrashInfo string
	Outcome   types.Outcome
}

// queueEntry pairs a candidate input with the mutation_context its own
// last execution produced, so the next mutation of it is steered by
// that context rather than an empty one — spec.md's data-flow: tracker
// (D) absorbs coverage, then mutation_context flows to (C).
type queueEntry struct {
	data            []byte
	mutationContext map[string]any
}

// New builds a Loop. The pool is sized per opts.Workers.
func New(cfg *config.RunConfig, exec executor.Executor, engine *mutate.Engine, tracker *corpus.Tracker, opts Options) (*Loop, error) {
	pool, err := ants.NewPool(opts.Workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:     cfg,
		exec:    exec,
		engine:  engine,
		tracker: tracker,
		opts:    opts,
		logger:  slog.Default(),
		pool:    pool,
		stats:   Stats{StartTime: time.Now()},
	}, nil
}

// SetLogger overrides the default slog logger used to report mutation
// failures.
func (l *Loop) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// AddSeed enqueues a seed input, unmutated, as a candidate to fuzz from.
// It carries no mutation context yet: every identifier a rule condition
// references resolves to the predicate evaluator's unknown-identifier
// default of zero.
func (l *Loop) AddSeed(input []byte) {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	l.queue = append(l.queue, queueEntry{data: input})
}

// Run drives the campaign until ctx is cancelled, the execution or time
// budget is exhausted, or the queue runs dry with nothing left to
// mutate from. It blocks until every dispatched worker has returned.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Release()
	deadline := time.Now().Add(l.opts.Budget)

	for {
		if ctx.Err() != nil {
			break
		}
		if l.opts.MaxExecutions > 0 && atomic.LoadInt64(&l.execCount) >= l.opts.MaxExecutions {
			break
		}
		if l.opts.Budget > 0 && time.Now().After(deadline) {
			break
		}

		seed, ok := l.nextSeed()
		if !ok {
			break
		}

		for i := 0; i < l.opts.MutationsPerInput; i++ {
			input := seed.data
			if mutated, err := l.engine.Apply(seed.data, seed.mutationContext); err == nil {
				input = mutated.Data
			} else {
				l.logger.Warn("mutation failed, re-executing seed unmutated", "error", err)
			}
			l.wg.Add(1)
			dispatched := input
			err := l.pool.Submit(func() {
				defer l.wg.Done()
				l.executeAndRecord(ctx, dispatched)
			})
			if err != nil {
				l.wg.Done()
			}
		}
	}

	l.wg.Wait()
	return nil
}

func (l *Loop) nextSeed() (queueEntry, bool) {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if len(l.queue) == 0 {
		return queueEntry{}, false
	}
	seed := l.queue[0]
	l.queue = l.queue[1:]
	return seed, true
}

// executeAndRecord runs one input through the harness, folds the
// result into the tracker, and re-enqueues the input if it grew
// coverage — the corpus-novelty feedback signal spec.md's data-flow
// diagram describes.
func (l *Loop) executeAndRecord(ctx context.Context, input []byte) {
	result := harness.Run(ctx, l.exec, input, l.cfg)
	atomic.AddInt64(&l.execCount, 1)
	atomic.AddInt64(&l.stats.Executions, 1)

	switch result.Outcome {
	case types.Crash:
		atomic.AddInt64(&l.stats.Crashes, 1)
		l.recordCrash(input, result)
		return
	case types.Timeout:
		atomic.AddInt64(&l.stats.Timeouts, 1)
		l.recordCrash(input, result)
		return
	}

	l.tracker.Lock()
	interesting := l.tracker.AddSample(result.Coverage, result.ExecutionTime)
	l.tracker.Unlock()

	if interesting {
		atomic.AddInt64(&l.stats.InterestingInputs, 1)
		l.statsMu.Lock()
		l.stats.LastInterestingAt = time.Now()
		l.statsMu.Unlock()
		l.queueMu.Lock()
		l.queue = append(l.queue, queueEntry{data: input, mutationContext: result.MutationContext})
		l.queueMu.Unlock()
	}
}

func (l *Loop) recordCrash(input []byte, result types.ExecutionResult) {
	l.crashMu.Lock()
	defer l.crashMu.Unlock()
	l.crashes = append(l.crashes, CrashRecord{
		Input:     input,
		CrashInfo: result.CrashInfo,
		Outcome:   result.Outcome,
	})
}

// Crashes returns every crash/timeout recorded so far.
func (l *Loop) Crashes() []CrashRecord {
	l.crashMu.Lock()
	defer l.crashMu.Unlock()
	out := make([]CrashRecord, len(l.crashes))
	copy(out, l.crashes)
	return out
}

// Stats returns a snapshot of the loop's running statistics.
func (l *Loop) Stats() Stats {
	l.statsMu.Lock()
	lastInteresting := l.stats.LastInterestingAt
	l.statsMu.Unlock()

	return Stats{
		Executions:        atomic.LoadInt64(&l.stats.Executions),
		InterestingInputs: atomic.LoadInt64(&l.stats.InterestingInputs),
		Crashes:           atomic.LoadInt64(&l.stats.Crashes),
		Timeouts:          atomic.LoadInt64(&l.stats.Timeouts),
		StartTime:         l.stats.StartTime,
		LastInterestingAt: lastInteresting,
	}
}

// Tracker exposes the coverage tracker for dashboards.
func (l *Loop) Tracker() *corpus.Tracker { return l.tracker }
