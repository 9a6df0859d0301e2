package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStep(t *testing.T) {
	step, err := ParseStep("")
	require.NoError(t, err)
	assert.Equal(t, StepEncode720p, step)

	step, err = ParseStep("encode-1080p")
	require.NoError(t, err)
	assert.Equal(t, StepEncode1080p, step)

	_, err = ParseStep("encode-4k")
	assert.Error(t, err)
}

func TestStepOrder(t *testing.T) {
	next, ok := StepEncode720p.Next()
	require.True(t, ok)
	assert.Equal(t, StepEncode1080p, next)

	next, ok = StepEncode1080p.Next()
	require.True(t, ok)
	assert.Equal(t, StepGenerateSprites, next)

	_, ok = StepGenerateSprites.Next()
	assert.False(t, ok, "generate-sprites is the terminal step")
}

func TestNewWorkerLanes(t *testing.T) {
	all := NewWorkerLanes([]string{"all"})
	assert.True(t, all.Accepts(LaneFast))
	assert.True(t, all.Accepts(LaneSlow))
	assert.True(t, all.Accepts(LaneClip))

	slowOnly := NewWorkerLanes([]string{"slow"})
	assert.True(t, slowOnly.Accepts(LaneSlow))
	assert.False(t, slowOnly.Accepts(LaneFast))
	assert.Equal(t, []string{"slow"}, slowOnly.Names())
}
