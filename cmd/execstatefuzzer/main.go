// execstatefuzzer drives an execution-state-guided fuzzing campaign
// against a subprocess binary or an HTTP target.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/execstatefuzzer/execstatefuzzer/internal/config"
	"github.com/execstatefuzzer/execstatefuzzer/internal/corpus"
	"github.com/execstatefuzzer/execstatefuzzer/internal/dashboard/tui"
	"github.com/execstatefuzzer/execstatefuzzer/internal/dashboard/web"
	"github.com/execstatefuzzer/execstatefuzzer/internal/executor"
	"github.com/execstatefuzzer/execstatefuzzer/internal/fuzzloop"
	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate"
	"github.com/execstatefuzzer/execstatefuzzer/internal/mutate/load"
	"github.com/execstatefuzzer/execstatefuzzer/internal/triage"
)

var version = "0.1.0-dev"

var (
	configPath   string
	strategyPath string
	pluginPath   string
	targetURL    string
	workers      int
	mutationsPer int
	maxExecs     int64
	budget       time.Duration
	mapSize      int
	plateauSec   int
	webMode      bool
	webPort      string
	tuiMode      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "execstatefuzzer",
		Short: "execution-state-guided fuzzer for native binaries",
		Long: `execstatefuzzer mutates inputs to a target binary (or HTTP
endpoint), classifies each run by coverage and by a projected snapshot
of its stdout-reported execution state, and steers future mutations by
both signals.`,
		RunE: runFuzzer,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the run config (YAML)")
	rootCmd.Flags().StringVar(&strategyPath, "strategy", "", "path to the mutation strategy file (YAML); static built-in rules if empty")
	rootCmd.Flags().StringVar(&pluginPath, "operator-plugin", "", "path to a Go plugin exporting additional operators")
	rootCmd.Flags().StringVar(&targetURL, "url", "", "fuzz an HTTP target instead of config.target.binary_path")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", fuzzloop.DefaultOptions().Workers, "concurrent executor workers")
	rootCmd.Flags().IntVarP(&mutationsPer, "mutations-per-input", "m", fuzzloop.DefaultOptions().MutationsPerInput, "mutations generated per dequeued input")
	rootCmd.Flags().Int64Var(&maxExecs, "max-executions", fuzzloop.DefaultOptions().MaxExecutions, "stop after this many executions (0 = unbounded)")
	rootCmd.Flags().DurationVar(&budget, "budget", fuzzloop.DefaultOptions().Budget, "stop after this much wall-clock time")
	rootCmd.Flags().IntVar(&mapSize, "map-size", 1<<16, "coverage bitmap size in bytes")
	rootCmd.Flags().IntVar(&plateauSec, "plateau-seconds", 300, "seconds without new coverage before reporting a plateau")
	rootCmd.Flags().BoolVar(&webMode, "web", false, "also serve the web dashboard alongside the campaign")
	rootCmd.Flags().StringVar(&webPort, "web-port", ":9090", "web dashboard listen address")
	rootCmd.Flags().BoolVar(&tuiMode, "tui", false, "attach the terminal dashboard in the foreground")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("execstatefuzzer version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("  execstatefuzzer — coverage + execution-state guided fuzzing")
	fmt.Printf("  v%s\n", version)
	fmt.Println()
}

func runFuzzer(cmd *cobra.Command, args []string) error {
	printBanner()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.DefaultRunConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if targetURL != "" {
		cfg.Target.URL = targetURL
	}

	var exec executor.Executor
	switch {
	case cfg.Target.URL != "":
		exec = executor.NewHTTPExecutor(cfg.Target.URL, executor.DefaultHTTPExecutorOptions())
	case cfg.Target.BinaryPath != "":
		exec = executor.NewSubprocessExecutor(cfg.Target.BinaryPath)
	default:
		return fmt.Errorf("no target specified: set target.binary_path or target.url in config, or pass --url")
	}

	var opSource mutate.OperatorSource = load.NewStaticSource()
	if pluginPath != "" {
		opSource = load.NewPluginSource(pluginPath)
	}

	var stratSource mutate.StrategySource
	if strategyPath != "" {
		stratSource = load.NewStrictFileStrategySource(strategyPath)
	} else {
		stratSource = defaultStrategySource{}
	}

	engine, err := mutate.New(opSource, stratSource)
	if err != nil {
		return fmt.Errorf("building mutation engine: %w", err)
	}

	tracker := corpus.New(mapSize, time.Duration(plateauSec)*time.Second)

	loop, err := fuzzloop.New(cfg, exec, engine, tracker, fuzzloop.Options{
		Workers:           workers,
		MutationsPerInput: mutationsPer,
		MaxExecutions:     maxExecs,
		Budget:            budget,
	})
	if err != nil {
		return fmt.Errorf("building fuzz loop: %w", err)
	}
	loop.SetLogger(logger)

	seeds, err := cfg.Fuzzer.DecodedSeedInputs()
	if err != nil {
		return fmt.Errorf("decoding seed inputs: %w", err)
	}
	if len(seeds) == 0 {
		seeds = [][]byte{[]byte("")}
	}
	for _, s := range seeds {
		loop.AddSeed(s)
	}

	dedup := triage.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down gracefully")
		cancel()
	}()

	if webMode {
		srv := web.New(loop, logger)
		go func() {
			if err := srv.Start(webPort); err != nil {
				logger.Error("web dashboard stopped", "error", err)
			}
		}()
		logger.Info("web dashboard listening", "addr", webPort)

		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					srv.BroadcastStats()
				}
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	if tuiMode {
		dash := tui.New(loop, targetLabel(cfg))
		if err := tui.Run(dash); err != nil {
			logger.Error("tui exited with error", "error", err)
		}
		cancel()
	}

	if runErr := <-done; runErr != nil {
		return runErr
	}

	summarizeCrashes(loop, dedup, logger)
	return nil
}

func targetLabel(cfg *config.RunConfig) string {
	if cfg.Target.URL != "" {
		return cfg.Target.URL
	}
	return cfg.Target.BinaryPath
}

func summarizeCrashes(loop *fuzzloop.Loop, dedup *triage.Deduper, logger *slog.Logger) {
	crashes := loop.Crashes()
	for _, c := range crashes {
		bucket, isNew := dedup.Classify(c.CrashInfo)
		if isNew {
			logger.Warn("new crash bucket", "bucket", bucket, "outcome", c.Outcome, "crash_info", c.CrashInfo)
		}
	}
	logger.Info("campaign finished", "executions", loop.Stats().Executions, "crashes", len(crashes), "buckets", len(dedup.Buckets()))
}

// defaultStrategySource falls back to a minimal always-applicable rule
// set when no --strategy file is given, so the fuzzer runs out of the
// box against the built-in operator registry.
type defaultStrategySource struct{}

func (defaultStrategySource) Load() (*mutate.Strategy, error) {
	return &mutate.Strategy{
		Rules: []mutate.Rule{
			{
				Name: "default",
				Operators: []mutate.WeightedOp{
					{Name: "bit_flip", Weight: 3},
					{Name: "byte_swap", Weight: 2},
					{Name: "arithmetic_add", Weight: 2},
					{Name: "interesting_value", Weight: 2},
					{Name: "havoc_splice", Weight: 1},
				},
			},
		},
	}, nil
}
