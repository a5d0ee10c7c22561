package domain

// SlipUnit selects how CellParams.SlipMax is interpreted by the slippage
// stage (§4.2(3)). This is run-level configuration, not a grid axis.
type SlipUnit int

const (
	SlipDollars SlipUnit = iota
	SlipR
	SlipPct
)

// IntensityMode selects the state-dependent slippage multiplier (§4.2(3)).
type IntensityMode int

const (
	IntensityNone IntensityMode = iota
	IntensityVol
	IntensityDD
	IntensityVolDD
)

// DelaySideMode selects whether entry/exit delay draws are independent.
type DelaySideMode int

const (
	DelayBothSides DelaySideMode = iota
	DelayOneSide
)

// RunConfig is the resolved control-surface record threaded through the
// coordinator and every worker subprocess. It is immutable once resolved by
// config.Config.ToRunConfig and is the only place run-level (non-grid-axis) knobs live.
type RunConfig struct {
	RepoPath        string
	RunName         string
	NPerCell        int
	Jobs            int
	CheckpointEvery int
	GlobalSeed      uint32

	FixedDelay      *int // nil = no filter
	SlipMin         *float64
	SlipMax         *float64
	IncludeZeroSlip bool

	StatusOnly bool

	// Kernel-internal knobs not exposed as grid axes.
	MinTrades        int
	MaxSkipRedraws   int
	SlipUnit         SlipUnit
	IntensityMode    IntensityMode
	DelaySideMode    DelaySideMode
	DelayAdverseCapR float64

	// Scheduler knobs.
	PerCellTimeoutBaseline int64 // seconds, scaled by NPerCell/200000
	HeartbeatIntervalSec   int
	ProgressIntervalSec    int
	SubprocessLaunchRate   float64 // launches/sec

	// WorkerShutdownGraceSec bounds how long a worker subprocess gets to
	// finish its current chunk append and rewrite progress.json after
	// receiving SIGTERM (coordinator Ctrl-C only, §5) before the launcher
	// escalates to SIGKILL via Cmd.WaitDelay.
	WorkerShutdownGraceSec int
}

// DefaultRunConfig returns the documented defaults from spec.md §4/§6.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NPerCell:               200_000,
		Jobs:                   8,
		CheckpointEvery:        2_000,
		GlobalSeed:             1337,
		MinTrades:              30,
		MaxSkipRedraws:         50,
		SlipUnit:               SlipDollars,
		IntensityMode:          IntensityNone,
		DelaySideMode:          DelayBothSides,
		DelayAdverseCapR:       0.5,
		PerCellTimeoutBaseline: 600,
		HeartbeatIntervalSec:   30,
		ProgressIntervalSec:    60,
		SubprocessLaunchRate:   50,
		WorkerShutdownGraceSec: 10,
	}
}
