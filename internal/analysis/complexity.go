// Package analysis derives a content-adaptive rate-control parameter from a
// sampled prefix of the source video.
//
// A low keyframe ratio correlates with high motion (sports, gaming), which
// needs more allocated bits at a given perceptual quality; a high keyframe
// ratio correlates with static content, which tolerates a coarser setting.
package analysis

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/openstream/transcoder/internal/ffmpeg"
)

// CRF step mapping. Lower CRF means higher quality and larger output.
const (
	CRFCoarse = 28
	CRFMedium = 25
	CRFFine   = 22
)

// Neutral defaults returned when the source cannot be sampled. The analyzer
// must never fail a job.
const (
	DefaultScore = 0.5
	DefaultCRF   = CRFMedium
)

// Result is one complexity measurement. It is recomputed fresh per step from
// the same local copy of the source, so it is deterministic per video.
type Result struct {
	Score         float64 // 0.0-1.0, rounded to 4 decimals
	CRF           int
	SampledFrames int
	KeyframeCount int
}

// Analyzer samples a fixed prefix of a local source file.
type Analyzer struct {
	prober ffmpeg.Prober
	window time.Duration
	logger *slog.Logger
}

// New creates an Analyzer sampling the given prefix window.
func New(prober ffmpeg.Prober, window time.Duration, logger *slog.Logger) *Analyzer {
	return &Analyzer{prober: prober, window: window, logger: logger}
}

// Analyze classifies every sampled frame and maps the keyframe ratio to a
// quality parameter. Probe failures and empty samples degrade to the neutral
// default instead of failing.
func (a *Analyzer) Analyze(ctx context.Context, path string) Result {
	frames, err := a.prober.ProbeFrames(ctx, path, a.window)
	if err != nil {
		a.logger.Warn("complexity probe failed, using neutral default",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return Result{Score: DefaultScore, CRF: DefaultCRF}
	}
	if len(frames) == 0 {
		a.logger.Warn("complexity probe sampled no frames, using neutral default",
			slog.String("path", path),
		)
		return Result{Score: DefaultScore, CRF: DefaultCRF}
	}

	keyframes := 0
	for _, f := range frames {
		if f.KeyFrame == 1 {
			keyframes++
		}
	}

	score := Score(keyframes, len(frames))
	result := Result{
		Score:         score,
		CRF:           CRFForScore(score),
		SampledFrames: len(frames),
		KeyframeCount: keyframes,
	}

	a.logger.Info("complexity analyzed",
		slog.String("path", path),
		slog.Float64("score", result.Score),
		slog.Int("crf", result.CRF),
		slog.Int("sampled_frames", result.SampledFrames),
		slog.Int("keyframes", result.KeyframeCount),
	)
	return result
}

// Score computes 1 - keyframes/total, rounded to 4 decimals.
func Score(keyframes, total int) float64 {
	ratio := float64(keyframes) / float64(total)
	return math.Round((1-ratio)*10000) / 10000
}

// CRFForScore maps a complexity score to a CRF via fixed thresholds:
// score <= 0.4 coarse, <= 0.75 medium, above fine.
func CRFForScore(score float64) int {
	switch {
	case score <= 0.4:
		return CRFCoarse
	case score <= 0.75:
		return CRFMedium
	default:
		return CRFFine
	}
}
