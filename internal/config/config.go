// Package config defines all configuration for the grid simulation run.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via GRIDSIM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Markets    MarketsConfig    `mapstructure:"markets"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// SimulationConfig bounds the overall run.
//
//   - Duration: total simulated time to run, e.g. 24h.
//   - SlotLength: length of one market slot, e.g. 15m.
//   - TickLength: length of one scheduler tick within a slot, e.g. 1s (wall-clock
//     throttle) representing some simulated duration.
//   - Seed: RNG seed; two runs with the same seed and setup produce identical
//     listener-notification order and identical trades.
//   - SetupPath: path to the scenario tree JSON describing areas and strategies.
type SimulationConfig struct {
	Duration        time.Duration `mapstructure:"duration"`
	SlotLength      time.Duration `mapstructure:"slot_length"`
	TickLength      time.Duration `mapstructure:"tick_length"`
	Seed            uint64        `mapstructure:"seed"`
	SetupPath       string        `mapstructure:"setup_path"`
	Paused          bool          `mapstructure:"paused"`
	Slowdown        time.Duration `mapstructure:"slowdown"`
	CompareAltPrice bool          `mapstructure:"compare_alt_pricing"`
}

// SchedulerConfig tunes the external-matcher round trip and rate-update
// cadence.
type SchedulerConfig struct {
	ExternalMatcherEnabled bool          `mapstructure:"external_matcher_enabled"`
	ExternalMatcherTimeout time.Duration `mapstructure:"external_matcher_timeout"`
	RateUpdateInterval     time.Duration `mapstructure:"rate_update_interval"`
}

// MarketsConfig selects the clearing algorithm and grid-fee stack applied
// to every area's spot market.
type MarketsConfig struct {
	ClearingAlgorithm string     `mapstructure:"clearing_algorithm"` // one_sided|pay_as_bid|pay_as_clear
	GridFees          []FeeEntry `mapstructure:"grid_fees"`
	FutureHorizons    []string   `mapstructure:"future_horizons"`
	KeepPastMarkets   int        `mapstructure:"keep_past_markets"` // number of sealed markets retained per area; 0 keeps all of them
}

// FeeEntry is one hop's fee, as configured — either a constant per-kWh
// charge or a percentage markup.
type FeeEntry struct {
	Type  string  `mapstructure:"type"` // constant|percentage
	Value float64 `mapstructure:"value"`
}

// StoreConfig sets where checkpoints are persisted.
type StoreConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	CheckpointPeriod time.Duration `mapstructure:"checkpoint_period"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRIDSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if seed := os.Getenv("GRIDSIM_SEED"); seed != "" {
		var parsed uint64
		if _, err := fmt.Sscanf(seed, "%d", &parsed); err == nil {
			cfg.Simulation.Seed = parsed
		}
	}
	if os.Getenv("GRIDSIM_PAUSED") == "true" || os.Getenv("GRIDSIM_PAUSED") == "1" {
		cfg.Simulation.Paused = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.slot_length", 15*time.Minute)
	v.SetDefault("simulation.tick_length", time.Second)
	v.SetDefault("scheduler.external_matcher_timeout", 5*time.Second)
	v.SetDefault("scheduler.rate_update_interval", time.Minute)
	v.SetDefault("markets.clearing_algorithm", "pay_as_clear")
	v.SetDefault("markets.keep_past_markets", 10)
	v.SetDefault("store.checkpoint_period", 10*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.addr", ":9090")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Simulation.Duration <= 0 {
		return fmt.Errorf("simulation.duration must be > 0")
	}
	if c.Simulation.SlotLength <= 0 {
		return fmt.Errorf("simulation.slot_length must be > 0")
	}
	if c.Simulation.TickLength <= 0 {
		return fmt.Errorf("simulation.tick_length must be > 0")
	}
	if c.Simulation.SlotLength%c.Simulation.TickLength != 0 {
		return fmt.Errorf("simulation.slot_length must be an exact multiple of simulation.tick_length")
	}
	if c.Simulation.SetupPath == "" {
		return fmt.Errorf("simulation.setup_path is required")
	}
	switch c.Markets.ClearingAlgorithm {
	case "one_sided", "pay_as_bid", "pay_as_clear":
	default:
		return fmt.Errorf("markets.clearing_algorithm must be one of: one_sided, pay_as_bid, pay_as_clear")
	}
	for _, fee := range c.Markets.GridFees {
		switch fee.Type {
		case "constant", "percentage":
		default:
			return fmt.Errorf("markets.grid_fees entry has invalid type %q", fee.Type)
		}
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}
