// Package notify prints grid progress to a terminal.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/alejandrodnm/montecarlo/internal/ports"
)

// Console implements ports.StatusReporter.
type Console struct {
	out io.Writer
	mu  sync.Mutex
}

// NewConsole creates a status reporter that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a status reporter for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// CellTransitioned prints one line per cell-state transition.
func (c *Console) CellTransitioned(cellID string, from, to domain.CellState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s  %s -> %s\n", now, cellID, from, to)
}

// PrintTable renders the full per-cell status table.
func (c *Console) PrintTable(rows []ports.CellStatusRow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(rows) == 0 {
		fmt.Fprintln(c.out, "no cells to report")
		return
	}

	done, complete := 0, 0
	for _, r := range rows {
		done += r.NDone
		if r.State == domain.CellComplete {
			complete++
		}
	}

	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %d cells, %d complete\n", now, len(rows), complete)

	table := tablewriter.NewWriter(c.out)
	table.Header("Cell", "State", "Done", "Target", "Robust")

	for _, r := range rows {
		robust := "-"
		if r.RobustScore != nil {
			robust = fmt.Sprintf("%.4f", *r.RobustScore)
		}
		table.Append(
			r.CellID,
			string(r.State),
			fmt.Sprintf("%d", r.NDone),
			fmt.Sprintf("%d", r.NTarget),
			robust,
		)
	}

	table.Render()
}
