package worker_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/montecarlo/internal/adapters/worker"
	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// TestMain lets this test binary re-exec itself as the fake worker process,
// the same trick os/exec's own tests use to avoid depending on an external
// binary.
func TestMain(m *testing.M) {
	if os.Getenv("MONTECARLO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	args := os.Args
	var cellID, paramsJSON string
	for i, a := range args {
		switch a {
		case worker.WorkerCellFlag:
			if i+1 < len(args) {
				cellID = args[i+1]
			}
		case worker.WorkerParamsFlag:
			if i+1 < len(args) {
				paramsJSON = args[i+1]
			}
		}
	}
	if cellID == "" || paramsJSON == "" {
		os.Exit(2)
	}
	var p domain.CellParams
	if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
		os.Exit(3)
	}
	if os.Getenv("MONTECARLO_HELPER_HANG") == "1" {
		time.Sleep(10 * time.Second)
	}
	os.Exit(0)
}

func TestSubprocessLauncher_LaunchCell_Success(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	l := worker.NewSubprocessLauncher(self, "montecarlo.yaml", 2*time.Second)
	os.Setenv("MONTECARLO_WANT_HELPER_PROCESS", "1")
	defer os.Unsetenv("MONTECARLO_WANT_HELPER_PROCESS")

	key := domain.CellKey{PSkipIdx: 1, SlipIdx: 2, DelayIdx: 0, ShuffleIdx: 0, BootstrapIdx: 0, BlockLenIdx: -1}
	params := domain.CellParams{PSkip: 0.05, SlipMax: 1.0}

	err = l.LaunchCell(context.Background(), key.String(), key, params)
	assert.NoError(t, err)
}

func TestSubprocessLauncher_LaunchCell_ContextCancelled(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	l := worker.NewSubprocessLauncher(self, "montecarlo.yaml", 2*time.Second)
	os.Setenv("MONTECARLO_WANT_HELPER_PROCESS", "1")
	os.Setenv("MONTECARLO_HELPER_HANG", "1")
	defer os.Unsetenv("MONTECARLO_WANT_HELPER_PROCESS")
	defer os.Unsetenv("MONTECARLO_HELPER_HANG")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	key := domain.CellKey{BlockLenIdx: -1}
	params := domain.CellParams{}

	err = l.LaunchCell(ctx, key.String(), key, params)
	assert.Error(t, err)
}
