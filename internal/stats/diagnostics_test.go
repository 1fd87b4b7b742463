package stats

import (
	"testing"

	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/usbtrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurations(t *testing.T) {
	txs := []correlate.Transaction{
		{Start: 0, End: 0.010},
		{Start: 0, End: 0.030},
		{Start: 0, End: 0.020},
	}

	d := Durations(txs)

	assert.Equal(t, 3, d.Samples)
	assert.InDelta(t, 20, d.P50, 1e-9)
	assert.InDelta(t, 30, d.Max, 1e-9)
	assert.Equal(t, DurationStats{}, Durations(nil))
}

func TestLargestGaps(t *testing.T) {
	// Gaps: 125us, 300us, 70ms, 125us, 1ms.
	txs := fromEnds(1.000, 1.125, 1.425, 71.425, 71.550, 72.550)

	gaps := LargestGaps(txs, 10)

	require.Len(t, gaps, 3)
	assert.InDelta(t, 70000, gaps[0].IntervalMicros, 1e-6, "pauses above the polling band are included")
	assert.InDelta(t, 71.425, gaps[0].TimestampMs, 1e-9)
	assert.InDelta(t, 1000, gaps[1].IntervalMicros, 1e-6)
	assert.InDelta(t, 300, gaps[2].IntervalMicros, 1e-6)

	assert.Len(t, LargestGaps(txs, 2), 2)
}

func TestControlInterference(t *testing.T) {
	polling := fromEnds(7.0, 9.5, 9.95, 10.05, 11.5, 12.5)
	controls := []correlate.Transaction{
		{Start: 9.8, End: 10.0, Transfer: usbtrace.TransferControl},
	}

	windows := ControlInterference(polling, controls)

	require.Len(t, windows, 1)
	w := windows[0]
	assert.InDelta(t, 200, w.DurationMicros, 1e-6)
	require.Len(t, w.Nearby, 4)
	assert.InDelta(t, -500, w.Nearby[0].OffsetMicros, 1e-6)
	assert.False(t, w.Nearby[0].Near)
	assert.InDelta(t, -50, w.Nearby[1].OffsetMicros, 1e-6)
	assert.True(t, w.Nearby[1].Near)
	assert.InDelta(t, 50, w.Nearby[2].OffsetMicros, 1e-6)
	assert.True(t, w.Nearby[2].Near)
	assert.InDelta(t, 1500, w.Nearby[3].OffsetMicros, 1e-6)
}

func TestControlInterference_Limits(t *testing.T) {
	ends := make([]float64, 40)
	for i := range ends {
		ends[i] = 10 + float64(i)*0.05
	}
	polling := fromEnds(ends...)

	var controls []correlate.Transaction
	for i := 0; i < 8; i++ {
		controls = append(controls, correlate.Transaction{Start: 10.5, End: 11, Transfer: usbtrace.TransferControl})
	}

	windows := ControlInterference(polling, controls)

	assert.Len(t, windows, ControlSampleLimit)
	for _, w := range windows {
		assert.Len(t, w.Nearby, NearbyPerControlLimit)
	}
	assert.Nil(t, ControlInterference(polling, nil))
}

func TestDiagnose(t *testing.T) {
	polling := periodic(100, 125)
	controls := []correlate.Transaction{{Start: 10.1, End: 10.2, Transfer: usbtrace.TransferControl}}

	d := Diagnose(polling, controls)

	assert.Equal(t, 100, d.Durations.Samples)
	assert.Empty(t, d.LargestGaps)
	assert.Equal(t, 1, d.ControlCount)
	require.Len(t, d.Controls, 1)
	assert.NotEmpty(t, d.Controls[0].Nearby)
}
