package notify_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/montecarlo/internal/adapters/notify"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/alejandrodnm/montecarlo/internal/ports"
)

func TestConsole_CellTransitioned(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.CellTransitioned("skip0.05__delay0", domain.CellFresh, domain.CellResuming)

	out := buf.String()
	assert.Contains(t, out, "skip0.05__delay0")
	assert.Contains(t, out, "fresh -> resuming")
}

func TestConsole_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	score := 0.8421
	rows := []ports.CellStatusRow{
		{CellID: "cell-a", State: domain.CellComplete, NDone: 200000, NTarget: 200000, RobustScore: &score},
		{CellID: "cell-b", State: domain.CellProducing, NDone: 50000, NTarget: 200000},
	}

	c.PrintTable(rows)

	out := buf.String()
	assert.Contains(t, out, "cell-a")
	assert.Contains(t, out, "cell-b")
	assert.Contains(t, out, "0.8421")
	assert.Contains(t, out, "1 complete")
}

func TestConsole_PrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintTable(nil)

	assert.Contains(t, buf.String(), "no cells to report")
}
