package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openstream/transcoder/internal/ffmpeg"
)

type stubProber struct {
	frames []ffmpeg.ProbeFrame
	err    error
}

func (s *stubProber) ProbeDuration(context.Context, string) (float64, error) {
	return 0, errors.New("not used")
}

func (s *stubProber) ProbeFrames(context.Context, string, time.Duration) ([]ffmpeg.ProbeFrame, error) {
	return s.frames, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frames(total, keyframes int) []ffmpeg.ProbeFrame {
	out := make([]ffmpeg.ProbeFrame, total)
	for i := 0; i < keyframes; i++ {
		out[i].KeyFrame = 1
	}
	return out
}

func TestAnalyze_ScoreAndCRF(t *testing.T) {
	tests := []struct {
		name      string
		frames    []ffmpeg.ProbeFrame
		wantScore float64
		wantCRF   int
	}{
		{"static content", frames(100, 60), 0.4, CRFCoarse},
		{"just above coarse cutoff", frames(100, 59), 0.41, CRFMedium},
		{"typical content", frames(100, 25), 0.75, CRFMedium},
		{"high motion", frames(100, 24), 0.76, CRFFine},
		{"all keyframes", frames(50, 50), 0, CRFCoarse},
		{"no keyframes", frames(50, 0), 1, CRFFine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&stubProber{frames: tt.frames}, 30*time.Second, discardLogger())
			got := a.Analyze(context.Background(), "source.mp4")
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			assert.Equal(t, tt.wantCRF, got.CRF)
			assert.Equal(t, len(tt.frames), got.SampledFrames)
		})
	}
}

func TestAnalyze_RoundsToFourDecimals(t *testing.T) {
	// 1/3 keyframes: 1 - 0.3333... rounds to 0.6667.
	a := New(&stubProber{frames: frames(3, 1)}, 30*time.Second, discardLogger())
	got := a.Analyze(context.Background(), "source.mp4")
	assert.Equal(t, 0.6667, got.Score)
}

func TestAnalyze_ProbeFailureFallsBackToNeutral(t *testing.T) {
	a := New(&stubProber{err: errors.New("boom")}, 30*time.Second, discardLogger())
	got := a.Analyze(context.Background(), "source.mp4")
	assert.Equal(t, DefaultScore, got.Score)
	assert.Equal(t, DefaultCRF, got.CRF)
}

func TestAnalyze_EmptySampleFallsBackToNeutral(t *testing.T) {
	a := New(&stubProber{frames: nil}, 30*time.Second, discardLogger())
	got := a.Analyze(context.Background(), "source.mp4")
	assert.Equal(t, DefaultScore, got.Score)
	assert.Equal(t, DefaultCRF, got.CRF)
}
