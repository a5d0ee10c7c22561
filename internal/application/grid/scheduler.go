package grid

// scheduler.go drives the enumerated grid through a bounded pool of
// isolated worker processes, emits the aggregated heartbeat/progress
// contract, and performs the final orphan sweep. The coordinator never
// writes under per_cell/ directly — every cell file is owned by the worker
// process that ran LaunchCell, via cellrunner.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/montecarlo/internal/application/cellrunner"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/alejandrodnm/montecarlo/internal/ports"
	"golang.org/x/time/rate"
)

// Scheduler dispatches cells to CellLauncher-run worker processes and owns
// the aggregated/ directory exclusively.
type Scheduler struct {
	cellStore  ports.CellStore
	aggStore   ports.AggregateStore
	launcher   ports.CellLauncher
	status     ports.StatusReporter
	cfg        domain.RunConfig
	runID      string
	baselinePF float64
	log        *slog.Logger
}

// New returns a Scheduler. status may be nil to disable terminal reporting.
// baselinePF is the step1_report.txt-derived baseline profit factor (NaN
// when unavailable), threaded to the orphan sweep's Summarize call so a
// cell finalized there computes the same p-value a normally-completing
// worker would.
func New(cellStore ports.CellStore, aggStore ports.AggregateStore, launcher ports.CellLauncher, status ports.StatusReporter, cfg domain.RunConfig, runID string, baselinePF float64, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{cellStore: cellStore, aggStore: aggStore, launcher: launcher, status: status, cfg: cfg, runID: runID, baselinePF: baselinePF, log: log}
}

// cellTimeout scales the 10-minute baseline timeout with n_per_cell relative
// to the canonical 200k-permutation cell, per §4.5.
func (s *Scheduler) cellTimeout() time.Duration {
	baseline := s.cfg.PerCellTimeoutBaseline
	if baseline <= 0 {
		baseline = 600
	}
	scale := float64(s.cfg.NPerCell) / 200_000
	if scale < 0.1 {
		scale = 0.1
	}
	return time.Duration(float64(baseline)*scale) * time.Second
}

// Run takes the enumerated cells, skips already-complete ones, dispatches the
// rest to a bounded worker pool, and finishes with an orphan sweep, plus
// DONE.txt when every cell has a summary. It returns once every dispatched
// cell has finished, failed or timed out and the sweep has run, or with an
// error when ctx is cancelled during the sweep.
func (s *Scheduler) Run(ctx context.Context, cells []Cell) error {
	jobs := s.cfg.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	launchRate := s.cfg.SubprocessLaunchRate
	if launchRate <= 0 {
		launchRate = 50
	}
	limiter := rate.NewLimiter(rate.Limit(launchRate), jobs)

	total := len(cells)
	var completed, stalled safeCounter

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go s.heartbeatLoop(heartbeatCtx, total, &completed, &stalled)
	go s.progressLoop(heartbeatCtx, total, &completed, &stalled)

	for _, cell := range cells {
		cellID := cell.Key.String()

		if s.cellAlreadyComplete(cellID) {
			completed.inc()
			s.reportTransition(cellID, domain.CellComplete)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			break // ctx cancelled
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(cell Cell, cellID string) {
			defer wg.Done()
			defer func() { <-sem }()

			s.reportTransition(cellID, domain.CellProducing)

			// ctx itself (never a per-cell derived context) is the only thing
			// that ever reaches the launcher, so the subprocess is only ever
			// asked to shut down on the coordinator's own Ctrl-C — never on a
			// per-cell timeout. §4.5/§5: a per-cell timeout "does not kill the
			// worker immediately"; it only "releases the future" so the
			// scheduler stops waiting, leaving the subprocess (and whatever it
			// has already flushed to metrics_compact.csv) for the orphan sweep
			// or the next invocation to recover.
			launchDone := make(chan error, 1)
			go func() {
				launchDone <- s.launcher.LaunchCell(ctx, cellID, cell.Key, cell.Params)
			}()

			select {
			case err := <-launchDone:
				if err != nil {
					// §7(4): worker crash is a skip + log. Data on disk is
					// authoritative; the cell remains Resuming and is retried
					// on the next invocation or recovered by the orphan sweep.
					s.log.Warn("cell launch failed, will retry on next invocation or orphan sweep", "cell_id", cellID, "error", err)
					stalled.inc()
					return
				}
				completed.inc()
				s.reportTransition(cellID, domain.CellComplete)
				s.writeGridSummaryRow(cellID)
			case <-time.After(s.cellTimeout()):
				s.log.Warn("cell timed out, releasing future without killing worker; orphan sweep or next invocation will recover", "cell_id", cellID)
				stalled.inc()
			}
		}(cell, cellID)
	}
	wg.Wait()

	if err := s.orphanSweep(ctx, cells); err != nil {
		return fmt.Errorf("grid.Scheduler.Run: orphan sweep: %w", err)
	}

	if s.allComplete(cells) {
		if err := s.aggStore.WriteDone(); err != nil {
			return fmt.Errorf("grid.Scheduler.Run: %w", err)
		}
	}

	if s.status != nil {
		s.status.PrintTable(s.statusRows(cells))
	}
	return nil
}

func (s *Scheduler) reportTransition(cellID string, to domain.CellState) {
	if s.status != nil {
		s.status.CellTransitioned(cellID, domain.CellProducing, to)
	}
}

func (s *Scheduler) cellAlreadyComplete(cellID string) bool {
	sum, ok, err := s.cellStore.ReadSummary(cellID)
	if err != nil || !ok {
		return false
	}
	rows, _, _, err := s.cellStore.ReadRawMetrics(cellID)
	if err != nil {
		return false
	}
	return sum.NRowsDeduped == s.cfg.NPerCell && len(rows) >= sum.NRowsDeduped
}

// orphanSweep re-finalizes every cell whose metrics log already has exactly
// n_target unique rows but is missing summary.json — the signature of a
// worker that finished production but crashed before writing the summary.
func (s *Scheduler) orphanSweep(ctx context.Context, cells []Cell) error {
	for _, cell := range cells {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cellID := cell.Key.String()
		if _, ok, _ := s.cellStore.ReadSummary(cellID); ok {
			continue
		}
		rows, nRaw, hadPartial, err := s.cellStore.ReadRawMetrics(cellID)
		if err != nil {
			return err
		}
		if hadPartial || len(rows) != s.cfg.NPerCell {
			continue
		}
		dupes := nRaw - len(rows)
		// The orphan sweep never ran the kernel itself, so it has no
		// degenerate-redraw counts for these rows (see cellrunner.Summarize).
		// s.baselinePF is loaded once from the same step1_report.txt every
		// worker reads, so the p-value this produces matches what a normally
		// completing worker would have written.
		summary := cellrunner.Summarize(cellID, rows, s.cfg.NPerCell, nRaw, dupes, 0, s.baselinePF)
		if err := s.cellStore.WriteSummary(cellID, summary); err != nil {
			return err
		}
		s.log.Info("orphan sweep finalized cell", "cell_id", cellID)
		s.writeGridSummaryRow(cellID)
	}
	return nil
}

// writeGridSummaryRow mirrors a just-finalized cell's summary into
// aggregated/grid_summary.csv. A write failure here is logged rather than
// propagated: the per-cell summary.json remains authoritative regardless.
func (s *Scheduler) writeGridSummaryRow(cellID string) {
	sum, ok, err := s.cellStore.ReadSummary(cellID)
	if err != nil || !ok {
		return
	}
	row := ports.GridSummaryRow{
		CellID: cellID,
		P05:    map[string]float64{},
		P50:    map[string]float64{},
		P95:    map[string]float64{},
	}
	for name, m := range sum.Metrics {
		row.P05[name] = m.Quantiles.P05
		row.P50[name] = m.Quantiles.P50
		row.P95[name] = m.Quantiles.P95
	}
	row.RobustScore = sum.RobustScore
	if err := s.aggStore.WriteGridSummaryRow(row); err != nil {
		s.log.Warn("grid summary row write failed", "cell_id", cellID, "error", err)
	}
}

func (s *Scheduler) allComplete(cells []Cell) bool {
	for _, cell := range cells {
		if _, ok, _ := s.cellStore.ReadSummary(cell.Key.String()); !ok {
			return false
		}
	}
	return true
}

func (s *Scheduler) statusRows(cells []Cell) []ports.CellStatusRow {
	rows := make([]ports.CellStatusRow, 0, len(cells))
	for _, cell := range cells {
		cellID := cell.Key.String()
		sum, ok, _ := s.cellStore.ReadSummary(cellID)
		state := domain.CellProducing
		var score *float64
		if ok {
			state = domain.CellComplete
			v := sum.RobustScore
			score = &v
		}
		rows = append(rows, ports.CellStatusRow{CellID: cellID, State: state, NDone: sum.NRowsDeduped, NTarget: s.cfg.NPerCell, RobustScore: score})
	}
	return rows
}

func (s *Scheduler) heartbeatLoop(ctx context.Context, total int, completed, stalled *safeCounter) {
	interval := time.Duration(s.cfg.HeartbeatIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := ports.AggregateHeartbeat{
				RunID:         s.runID,
				CellsTotal:    total,
				CellsComplete: completed.get(),
				CellsStalled:  stalled.get(),
				UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
			}
			if err := s.aggStore.WriteHeartbeat(h); err != nil {
				s.log.Warn("heartbeat write failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) progressLoop(ctx context.Context, total int, completed, stalled *safeCounter) {
	interval := time.Duration(s.cfg.ProgressIntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			line := fmt.Sprintf("%s,cells_total=%d,cells_complete=%d,cells_stalled=%d",
				time.Now().UTC().Format(time.RFC3339), total, completed.get(), stalled.get())
			if err := s.aggStore.AppendProgressLine(line); err != nil {
				s.log.Warn("progress append failed", "error", err)
			}
		}
	}
}

// safeCounter is a minimal mutex-guarded counter. The scheduler's own
// concurrency model relies only on the filesystem for coordination between
// workers; this counter exists solely for heartbeat/progress reporting.
type safeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *safeCounter) inc()     { c.mu.Lock(); c.v++; c.mu.Unlock() }
func (c *safeCounter) get() int { c.mu.Lock(); defer c.mu.Unlock(); return c.v }
