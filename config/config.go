package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// Config is the full run configuration as loaded from montecarlo.yaml,
// before resolution into a domain.RunConfig.
type Config struct {
	Run     RunSection     `yaml:"run"`
	Grid    GridSection    `yaml:"grid"`
	Kernel  KernelSection  `yaml:"kernel"`
	Sched   SchedSection   `yaml:"scheduler"`
	Log     LogConfig      `yaml:"log"`
}

// RunSection controls the top-level run identity and volume.
type RunSection struct {
	RepoPath        string `yaml:"repo_path"`
	RunName         string `yaml:"run_name"`
	NPerCell        int    `yaml:"n_per_cell"`
	Jobs            int    `yaml:"jobs"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	GlobalSeed      uint32 `yaml:"global_seed"`
	StatusOnly      bool   `yaml:"status_only"`
}

// GridSection controls which cells are enumerated.
type GridSection struct {
	FixedDelay      *int     `yaml:"fixed_delay"`
	SlipMin         *float64 `yaml:"slip_min"`
	SlipMax         *float64 `yaml:"slip_max"`
	IncludeZeroSlip bool     `yaml:"include_zero_slip"`
}

// KernelSection controls perturbation-kernel internals not exposed as grid axes.
type KernelSection struct {
	MinTrades        int     `yaml:"min_trades"`
	MaxSkipRedraws   int     `yaml:"max_skip_redraws"`
	SlipUnit         string  `yaml:"slip_unit"`          // dollars | r | pct
	IntensityMode    string  `yaml:"intensity_mode"`     // none | vol | dd | vol_dd
	DelaySideMode    string  `yaml:"delay_side_mode"`    // both | one
	DelayAdverseCapR float64 `yaml:"delay_adverse_cap_r"`
}

// SchedSection controls the grid scheduler's timing knobs.
type SchedSection struct {
	PerCellTimeoutBaseline int64   `yaml:"per_cell_timeout_baseline_sec"`
	HeartbeatIntervalSec   int     `yaml:"heartbeat_interval_sec"`
	ProgressIntervalSec    int     `yaml:"progress_interval_sec"`
	SubprocessLaunchRate   float64 `yaml:"subprocess_launch_rate"`
	WorkerShutdownGraceSec int     `yaml:"worker_shutdown_grace_sec"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load loads .env, reads the YAML config file, applies environment
// overrides, then fills defaults; ToRunConfig resolves the result into a
// domain.RunConfig. A missing config file is not fatal: defaults apply as if
// an empty file had been read (a deliberate deviation from the teacher,
// which treats it as fatal; see DESIGN.md).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // silently ignored if no .env file is present

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites values with environment variables, when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONTECARLO_REPO_PATH"); v != "" {
		cfg.Run.RepoPath = v
	}
	if v := os.Getenv("MONTECARLO_RUN_NAME"); v != "" {
		cfg.Run.RunName = v
	}
	if v := os.Getenv("MONTECARLO_GLOBAL_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Run.GlobalSeed = uint32(n)
		}
	}
	if v := os.Getenv("MONTECARLO_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Jobs = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults ensures required fields hold sane values, matching
// domain.DefaultRunConfig wherever the YAML/env left a field unset.
func setDefaults(cfg *Config) {
	defaults := domain.DefaultRunConfig()

	if cfg.Run.NPerCell <= 0 {
		cfg.Run.NPerCell = defaults.NPerCell
	}
	if cfg.Run.Jobs <= 0 {
		cfg.Run.Jobs = defaults.Jobs
	}
	if cfg.Run.CheckpointEvery <= 0 {
		cfg.Run.CheckpointEvery = defaults.CheckpointEvery
	}
	if cfg.Run.GlobalSeed == 0 {
		cfg.Run.GlobalSeed = defaults.GlobalSeed
	}
	if cfg.Run.RunName == "" {
		cfg.Run.RunName = "default"
	}
	if cfg.Run.RepoPath == "" {
		cfg.Run.RepoPath = "backtest/out/montecarlo/" + cfg.Run.RunName
	}

	if cfg.Kernel.MinTrades <= 0 {
		cfg.Kernel.MinTrades = defaults.MinTrades
	}
	if cfg.Kernel.MaxSkipRedraws <= 0 {
		cfg.Kernel.MaxSkipRedraws = defaults.MaxSkipRedraws
	}
	if cfg.Kernel.SlipUnit == "" {
		cfg.Kernel.SlipUnit = "dollars"
	}
	if cfg.Kernel.IntensityMode == "" {
		cfg.Kernel.IntensityMode = "none"
	}
	if cfg.Kernel.DelaySideMode == "" {
		cfg.Kernel.DelaySideMode = "both"
	}
	if cfg.Kernel.DelayAdverseCapR <= 0 {
		cfg.Kernel.DelayAdverseCapR = defaults.DelayAdverseCapR
	}

	if cfg.Sched.PerCellTimeoutBaseline <= 0 {
		cfg.Sched.PerCellTimeoutBaseline = defaults.PerCellTimeoutBaseline
	}
	if cfg.Sched.HeartbeatIntervalSec <= 0 {
		cfg.Sched.HeartbeatIntervalSec = defaults.HeartbeatIntervalSec
	}
	if cfg.Sched.ProgressIntervalSec <= 0 {
		cfg.Sched.ProgressIntervalSec = defaults.ProgressIntervalSec
	}
	if cfg.Sched.SubprocessLaunchRate <= 0 {
		cfg.Sched.SubprocessLaunchRate = defaults.SubprocessLaunchRate
	}
	if cfg.Sched.WorkerShutdownGraceSec <= 0 {
		cfg.Sched.WorkerShutdownGraceSec = defaults.WorkerShutdownGraceSec
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// ToRunConfig resolves the loaded Config into the domain.RunConfig the
// kernel, cell runner, and scheduler all consume.
func (c *Config) ToRunConfig() domain.RunConfig {
	rc := domain.DefaultRunConfig()
	rc.RepoPath = c.Run.RepoPath
	rc.RunName = c.Run.RunName
	rc.NPerCell = c.Run.NPerCell
	rc.Jobs = c.Run.Jobs
	rc.CheckpointEvery = c.Run.CheckpointEvery
	rc.GlobalSeed = c.Run.GlobalSeed
	rc.StatusOnly = c.Run.StatusOnly

	rc.FixedDelay = c.Grid.FixedDelay
	rc.SlipMin = c.Grid.SlipMin
	rc.SlipMax = c.Grid.SlipMax
	rc.IncludeZeroSlip = c.Grid.IncludeZeroSlip

	rc.MinTrades = c.Kernel.MinTrades
	rc.MaxSkipRedraws = c.Kernel.MaxSkipRedraws
	rc.SlipUnit = parseSlipUnit(c.Kernel.SlipUnit)
	rc.IntensityMode = parseIntensityMode(c.Kernel.IntensityMode)
	rc.DelaySideMode = parseDelaySideMode(c.Kernel.DelaySideMode)
	rc.DelayAdverseCapR = c.Kernel.DelayAdverseCapR

	rc.PerCellTimeoutBaseline = c.Sched.PerCellTimeoutBaseline
	rc.HeartbeatIntervalSec = c.Sched.HeartbeatIntervalSec
	rc.ProgressIntervalSec = c.Sched.ProgressIntervalSec
	rc.SubprocessLaunchRate = c.Sched.SubprocessLaunchRate
	rc.WorkerShutdownGraceSec = c.Sched.WorkerShutdownGraceSec

	return rc
}

func parseSlipUnit(s string) domain.SlipUnit {
	switch s {
	case "r":
		return domain.SlipR
	case "pct":
		return domain.SlipPct
	default:
		return domain.SlipDollars
	}
}

func parseIntensityMode(s string) domain.IntensityMode {
	switch s {
	case "vol":
		return domain.IntensityVol
	case "dd":
		return domain.IntensityDD
	case "vol_dd":
		return domain.IntensityVolDD
	default:
		return domain.IntensityNone
	}
}

func parseDelaySideMode(s string) domain.DelaySideMode {
	if s == "one" {
		return domain.DelayOneSide
	}
	return domain.DelayBothSides
}
