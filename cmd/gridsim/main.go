// gridsim is a discrete-event simulator for hierarchical microgrid energy
// markets: areas trade energy through nested spot markets bridged by
// inter-area agents, with optional future/settlement markets and an
// external bid/offer matching hook.
//
// Architecture:
//
//	main.go                  — entry point: cobra command tree, config load, scheduler lifecycle
//	internal/config          — viper-backed Config/SimulationConfig, GRIDSIM_* env overrides
//	internal/area            — arena-based area tree, Strategy capability set
//	internal/strategy        — concrete leaf device strategies
//	internal/market          — per-slot order book: post/delete/accept, accounting, notification bus
//	internal/matching        — one-sided / pay-as-bid / pay-as-clear clearing engines
//	internal/fees            — constant/percentage grid-fee stacking
//	internal/iaa             — inter-area agent: forwards and chains trades between nested markets
//	internal/futures         — day/week/month/year future markets, settlement true-up market
//	internal/rateupdater     — linear rate interpolation for template strategies
//	internal/extmatcher      — in-process pub/sub broker for the external matching protocol
//	internal/scheduler       — single-threaded tick/slot loop, pause/resume/slowdown
//	internal/store           — atomic JSON checkpoint persistence
//	internal/metrics         — Prometheus counters/gauges
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gridsim/internal/config"
	"gridsim/internal/extmatcher"
	"gridsim/internal/fees"
	"gridsim/internal/futures"
	"gridsim/internal/matching"
	"gridsim/internal/metrics"
	"gridsim/internal/scheduler"
	"gridsim/internal/store"
	"gridsim/pkg/scenario"
)

// Exit codes: 0 success, 1 configuration error, 2 runtime error — matching
// the teacher's os.Exit(1) pattern, extended with a distinct runtime code.
const (
	exitOK        = 0
	exitConfigErr = 1
	exitRuntimeErr = 2
)

var (
	flagConfigPath string
	flagDuration   time.Duration
	flagTickLength time.Duration
	flagSlotLength time.Duration
	flagSetupPath  string
	flagSeed       uint64
	flagExportPath string
	flagPaused     bool
	flagSlowdown   time.Duration
	flagCompareAlt bool
	flagLogLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitRuntimeErr)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gridsim",
	Short: "gridsim simulates hierarchical microgrid energy markets",
	Long:  "gridsim is a discrete-event simulator for nested microgrid energy markets.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a scenario setup file",
	Run:   runSimulation,
}

func init() {
	runCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "configs/config.yaml", "path to the runtime config YAML file")
	runCmd.Flags().DurationVarP(&flagDuration, "duration", "d", 0, "total simulated duration (overrides config)")
	runCmd.Flags().DurationVarP(&flagTickLength, "tick-length", "t", 0, "scheduler tick length (overrides config)")
	runCmd.Flags().DurationVarP(&flagSlotLength, "slot-length", "s", 0, "market slot length (overrides config)")
	runCmd.Flags().StringVar(&flagSetupPath, "setup", "", "path to the scenario tree JSON file (overrides config)")
	runCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "RNG seed (overrides config)")
	runCmd.Flags().StringVar(&flagExportPath, "export-path", "", "directory to write checkpoints into (overrides config store.data_dir)")
	runCmd.Flags().BoolVar(&flagPaused, "paused", false, "start the scheduler paused")
	runCmd.Flags().DurationVar(&flagSlowdown, "slowdown", 0, "extra sleep per tick, for observing a run in real time")
	runCmd.Flags().BoolVar(&flagCompareAlt, "compare-alt-pricing", false, "record compare_alt_pricing in the run config (no second pricing pass is run)")
	runCmd.Flags().StringVarP(&flagLogLevel, "log-level", "l", "", "log level: debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %s\n", err)
		os.Exit(exitConfigErr)
	}
	applyFlagOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %s\n", err)
		os.Exit(exitConfigErr)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	setupData, err := os.ReadFile(cfg.Simulation.SetupPath)
	if err != nil {
		logger.Error("failed to read setup file", "path", cfg.Simulation.SetupPath, "error", err)
		os.Exit(exitConfigErr)
	}
	root, err := scenario.Parse(setupData)
	if err != nil {
		logger.Error("failed to parse setup file", "error", err)
		os.Exit(exitConfigErr)
	}

	gridFees, err := buildGridFees(cfg)
	if err != nil {
		logger.Error("invalid grid fee configuration", "error", err)
		os.Exit(exitConfigErr)
	}

	startSlot := time.Now().UTC().Truncate(cfg.Simulation.SlotLength)
	rng := rand.New(rand.NewPCG(cfg.Simulation.Seed, cfg.Simulation.Seed^0x9e3779b97f4a7c15))

	tree, err := scenario.Build(root, startSlot, gridFees, rng, cfg.Simulation.SlotLength, cfg.Scheduler.RateUpdateInterval)
	if err != nil {
		logger.Error("failed to build area tree from setup", "error", err)
		os.Exit(exitConfigErr)
	}

	sched, err := scheduler.New(tree, cfg.Simulation.SlotLength, cfg.Simulation.TickLength, cfg.Simulation.Duration, startSlot, logger)
	if err != nil {
		logger.Error("failed to construct scheduler", "error", err)
		os.Exit(exitConfigErr)
	}

	engine, err := matching.New(cfg.Markets.ClearingAlgorithm)
	if err != nil {
		logger.Error("failed to resolve clearing algorithm", "error", err)
		os.Exit(exitConfigErr)
	}
	sched.Engine = engine
	sched.KeepPastMarkets = cfg.Markets.KeepPastMarkets

	for _, horizon := range cfg.Markets.FutureHorizons {
		fm := futures.New(futures.Horizon(horizon), gridFees, rng)
		fm.Rotate(startSlot)
		sched.FutureMarkets = append(sched.FutureMarkets, fm)
	}
	sched.Settlement = futures.NewSettlement(gridFees, rng)

	if cfg.Simulation.Paused {
		sched.Pause()
	}
	if cfg.Simulation.Slowdown > 0 {
		sched.SetSlowdown(cfg.Simulation.Slowdown)
	}

	if cfg.Scheduler.ExternalMatcherEnabled {
		sched.Hub = extmatcher.NewHub(logger)
		sched.ExternalMatcherEnabled = true
		sched.ExternalMatcherTimeout = cfg.Scheduler.ExternalMatcherTimeout
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		os.Exit(exitConfigErr)
	}
	defer st.Close()
	sched.OnSlotClose = func(slot time.Time) {
		if err := st.Save(slot.Format(time.RFC3339), store.Checkpoint{Slot: slot}); err != nil {
			logger.Error("checkpoint save failed", "slot", slot, "error", err)
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting simulation",
		"duration", cfg.Simulation.Duration,
		"slot_length", cfg.Simulation.SlotLength,
		"tick_length", cfg.Simulation.TickLength,
		"seed", cfg.Simulation.Seed,
	)

	if err := sched.Run(ctx); err != nil {
		logger.Error("simulation ended with error", "error", err)
		os.Exit(exitRuntimeErr)
	}

	logger.Info("simulation finished")
}

func applyFlagOverrides(cfg *config.Config) {
	if flagDuration > 0 {
		cfg.Simulation.Duration = flagDuration
	}
	if flagTickLength > 0 {
		cfg.Simulation.TickLength = flagTickLength
	}
	if flagSlotLength > 0 {
		cfg.Simulation.SlotLength = flagSlotLength
	}
	if flagSetupPath != "" {
		cfg.Simulation.SetupPath = flagSetupPath
	}
	if flagSeed != 0 {
		cfg.Simulation.Seed = flagSeed
	}
	if flagExportPath != "" {
		cfg.Store.DataDir = flagExportPath
	}
	if flagPaused {
		cfg.Simulation.Paused = true
	}
	if flagSlowdown > 0 {
		cfg.Simulation.Slowdown = flagSlowdown
	}
	if flagCompareAlt {
		cfg.Simulation.CompareAltPrice = true
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
}

func buildGridFees(cfg *config.Config) ([]fees.Calculator, error) {
	out := make([]fees.Calculator, 0, len(cfg.Markets.GridFees))
	for _, entry := range cfg.Markets.GridFees {
		switch entry.Type {
		case "constant":
			out = append(out, fees.ConstantFee{FeeConst: decimal.NewFromFloat(entry.Value)})
		case "percentage":
			out = append(out, fees.PercentageFee{FeePercentage: decimal.NewFromFloat(entry.Value)})
		default:
			return nil, fmt.Errorf("unknown grid fee type %q", entry.Type)
		}
	}
	return out, nil
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
