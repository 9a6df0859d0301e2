package sprites

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanGrid_ShortVideo(t *testing.T) {
	g, err := PlanGrid(45)
	require.NoError(t, err)

	assert.Equal(t, 5.0, g.Interval)
	assert.Equal(t, 9, g.Count)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 3, g.Rows)
}

func TestPlanGrid_IntervalThresholds(t *testing.T) {
	tests := []struct {
		duration float64
		interval float64
	}{
		{599, 5},
		{600, 10},
		{3599, 10},
		{3600, 20},
		{7200, 20},
	}
	for _, tt := range tests {
		g, err := PlanGrid(tt.duration)
		require.NoError(t, err)
		assert.Equal(t, tt.interval, g.Interval, "duration %gs", tt.duration)
	}
}

func TestPlanGrid_CapacityAndShape(t *testing.T) {
	// The sheet must hold every sampled frame without a fully empty row,
	// across a spread of durations.
	for _, d := range []float64{1, 4, 5, 31, 120, 599, 600, 1234, 3600, 9999} {
		g, err := PlanGrid(d)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, g.Cols*g.Rows, g.Count, "duration %gs", d)
		assert.Less(t, g.Cols*(g.Rows-1), g.Count, "duration %gs has an empty row", d)
	}
}

func TestPlanGrid_InvalidDuration(t *testing.T) {
	_, err := PlanGrid(0)
	assert.Error(t, err)
	_, err = PlanGrid(-3)
	assert.Error(t, err)
}

func TestCellOffset_RowMajor(t *testing.T) {
	g := Grid{Cols: 3, Rows: 3}

	x, y := g.CellOffset(0)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)

	x, y = g.CellOffset(2)
	assert.Equal(t, 2*CellWidth, x)
	assert.Equal(t, 0, y)

	x, y = g.CellOffset(3)
	assert.Equal(t, 0, x)
	assert.Equal(t, CellHeight, y)

	x, y = g.CellOffset(8)
	assert.Equal(t, 2*CellWidth, x)
	assert.Equal(t, 2*CellHeight, y)
}

func TestWriteVTT_CuesAndClamping(t *testing.T) {
	g, err := PlanGrid(45)
	require.NoError(t, err)

	vtt := WriteVTT(g)
	assert.True(t, strings.HasPrefix(vtt, "WEBVTT\n"))
	assert.Equal(t, g.Count, strings.Count(vtt, "-->"))

	assert.Contains(t, vtt, "00:00:00.000 --> 00:00:05.000")
	assert.Contains(t, vtt, "sprite.jpg#xywh=0,0,160,90")
	assert.Contains(t, vtt, "sprite.jpg#xywh=320,180,160,90")
	// 45s divides evenly; the last cue ends exactly at the duration.
	assert.Contains(t, vtt, "00:00:40.000 --> 00:00:45.000")
}

func TestWriteVTT_LastCueClampedToDuration(t *testing.T) {
	g, err := PlanGrid(43)
	require.NoError(t, err)

	vtt := WriteVTT(g)
	assert.Contains(t, vtt, "00:00:40.000 --> 00:00:43.000")
	assert.NotContains(t, vtt, "00:00:45.000")
}

func TestWriteVTT_HourTimestamps(t *testing.T) {
	g, err := PlanGrid(3620)
	require.NoError(t, err)

	vtt := WriteVTT(g)
	assert.Contains(t, vtt, "01:00:00.000 --> 01:00:20.000")
}
