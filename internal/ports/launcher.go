package ports

import (
	"context"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// CellLauncher runs one cell to completion in an isolated worker process,
// containing crashes from the numeric kernel so they never reach the
// coordinator. LaunchCell blocks until the subprocess exits or ctx is
// cancelled (the coordinator's own shutdown; the scheduler's per-cell
// timeout never cancels ctx).
type CellLauncher interface {
	LaunchCell(ctx context.Context, cellID string, key domain.CellKey, params domain.CellParams) error
}
