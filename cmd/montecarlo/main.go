package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/montecarlo/config"
	"github.com/alejandrodnm/montecarlo/internal/adapters/inputs"
	"github.com/alejandrodnm/montecarlo/internal/adapters/notify"
	"github.com/alejandrodnm/montecarlo/internal/adapters/storage"
	"github.com/alejandrodnm/montecarlo/internal/adapters/worker"
	"github.com/alejandrodnm/montecarlo/internal/application/cellrunner"
	"github.com/alejandrodnm/montecarlo/internal/application/grid"
	"github.com/alejandrodnm/montecarlo/internal/application/kernel"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/alejandrodnm/montecarlo/internal/ports"
)

func main() {
	configPath := flag.String("config", "montecarlo.yaml", "path to config file")
	table := flag.Bool("table", false, "print the full per-cell status table after the run")
	statusOnly := flag.Bool("status-only", false, "print status for an existing run and exit without scheduling work")
	verbose := flag.Bool("verbose", false, "set log level to debug")

	workerCell := flag.String(worker.WorkerCellFlag[1:], "", "internal: run a single cell in worker mode")
	workerParams := flag.String(worker.WorkerParamsFlag[1:], "", "internal: JSON-encoded domain.CellParams for -worker-cell")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	runCfg := cfg.ToRunConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *workerCell != "" {
		runWorker(ctx, runCfg, *workerCell, *workerParams)
		return
	}

	runCoordinator(ctx, runCfg, *configPath, *table, *statusOnly || runCfg.StatusOnly)
}

// runWorker executes exactly one cell to completion (or until ctx is
// cancelled) and exits. This is the subprocess side of worker.SubprocessLauncher.
func runWorker(ctx context.Context, cfg domain.RunConfig, cellID, paramsJSON string) {
	var params domain.CellParams
	if err := unmarshalParams(paramsJSON, &params); err != nil {
		slog.Error("worker: bad params", "cell_id", cellID, "err", err)
		os.Exit(1)
	}

	in, err := loadAndPrepareInputs(cfg)
	if err != nil {
		slog.Error("worker: failed to load inputs", "err", err)
		os.Exit(1)
	}

	k := kernel.New(in, cfg)
	store := storage.NewCellFileStore(cfg.RepoPath)
	runner := cellrunner.New(store, k, cfg, slog.Default())

	baseSeed := domain.BaseSeed(cfg.GlobalSeed, cellID, domain.DefaultSeedStride)

	result, err := runner.RunCell(ctx, cellID, params, baseSeed, cfg.NPerCell)
	if err != nil {
		slog.Error("worker: cell run failed", "cell_id", cellID, "err", err)
		os.Exit(1)
	}
	if !result.Finished {
		slog.Warn("worker: exiting before cell reached complete", "cell_id", cellID, "state", result.State)
		os.Exit(1)
	}
	slog.Info("worker: cell complete", "cell_id", cellID, "robust_score", result.Summary.RobustScore)
}

// runCoordinator enumerates the grid and dispatches every cell to its own
// worker subprocess via the scheduler; each worker loads the inputs itself.
func runCoordinator(ctx context.Context, cfg domain.RunConfig, configPath string, table, statusOnly bool) {
	slog.Info("montecarlo starting",
		"run_name", cfg.RunName, "repo_path", cfg.RepoPath,
		"n_per_cell", cfg.NPerCell, "jobs", cfg.Jobs, "status_only", statusOnly)

	cellStore := storage.NewCellFileStore(cfg.RepoPath)
	aggStore := storage.NewAggregateFileStore(cfg.RepoPath)

	axes := grid.DefaultAxes()
	cells := grid.Enumerate(axes, cfg)

	if statusOnly {
		printStatus(cellStore, cells, cfg)
		return
	}

	self, err := os.Executable()
	if err != nil {
		slog.Error("failed to resolve own executable path", "err", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	if err := aggStore.WriteManifest(ports.AggregateManifest{
		RunID:      runID,
		RunName:    cfg.RunName,
		GlobalSeed: cfg.GlobalSeed,
		NPerCell:   cfg.NPerCell,
		Grid: map[string]any{
			"cells":      len(cells),
			"p_skip":     axes.PSkip,
			"slip_max":   axes.SlipMax,
			"delay_bars": axes.DelayBars,
		},
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Warn("failed to write run manifest", "err", err)
	}

	launcher := worker.NewSubprocessLauncher(self, configPath, time.Duration(cfg.WorkerShutdownGraceSec)*time.Second)
	reporter := notify.NewConsole()

	baselinePF := inputs.LoadBaselineProfitFactor(cfg.RepoPath)
	sched := grid.New(cellStore, aggStore, launcher, reporter, cfg, runID, baselinePF, slog.Default())
	if err := sched.Run(ctx, cells); err != nil {
		slog.Error("scheduler exited with error", "err", err)
		os.Exit(1)
	}

	index, err := storage.NewSQLiteIndex(filepath.Join(cfg.RepoPath, "aggregated", "index.db"))
	if err != nil {
		slog.Error("failed to open summary index", "err", err)
		os.Exit(1)
	}
	defer index.Close()

	syncIndex(index, cellStore, cells)

	if table {
		reporter.PrintTable(statusRows(cellStore, cells, cfg))
	}

	slog.Info("montecarlo stopped cleanly")
}

// printStatus reports the current grid state without dispatching any work.
func printStatus(store ports.CellStore, cells []grid.Cell, cfg domain.RunConfig) {
	notify.NewConsole().PrintTable(statusRows(store, cells, cfg))
}

func statusRows(store ports.CellStore, cells []grid.Cell, cfg domain.RunConfig) []ports.CellStatusRow {
	rows := make([]ports.CellStatusRow, 0, len(cells))
	for _, cell := range cells {
		cellID := cell.Key.String()
		sum, ok, _ := store.ReadSummary(cellID)
		state := domain.CellFresh
		var score *float64
		nDone := 0
		if _, nRaw, _, err := store.ReadRawMetrics(cellID); err == nil && nRaw > 0 {
			state = domain.CellResuming
			nDone = nRaw
		}
		if ok {
			state = domain.CellComplete
			v := sum.RobustScore
			score = &v
			nDone = sum.NRowsDeduped
		}
		rows = append(rows, ports.CellStatusRow{CellID: cellID, State: state, NDone: nDone, NTarget: cfg.NPerCell, RobustScore: score})
	}
	return rows
}

// syncIndex mirrors every finalized cell's summary into the SQLite index, so
// that ranking queries never need to scan grid_summary.csv.
func syncIndex(index *storage.SQLiteIndex, store ports.CellStore, cells []grid.Cell) {
	for _, cell := range cells {
		cellID := cell.Key.String()
		sum, ok, err := store.ReadSummary(cellID)
		if err != nil || !ok {
			continue
		}
		row := ports.GridSummaryRow{CellID: cellID, P05: map[string]float64{}, P50: map[string]float64{}, P95: map[string]float64{}}
		for name, m := range sum.Metrics {
			row.P05[name] = m.Quantiles.P05
			row.P50[name] = m.Quantiles.P50
			row.P95[name] = m.Quantiles.P95
		}
		row.RobustScore = sum.RobustScore
		if err := index.Upsert(row); err != nil {
			slog.Warn("index upsert failed", "cell_id", cellID, "err", err)
		}
	}
}

func loadAndPrepareInputs(cfg domain.RunConfig) (*domain.Inputs, error) {
	in, err := inputs.Load(cfg.RepoPath)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.Prepare()
	return in, nil
}

func unmarshalParams(s string, out *domain.CellParams) error {
	if s == "" {
		return fmt.Errorf("empty -worker-params")
	}
	return json.Unmarshal([]byte(s), out)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
