package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/openstream/transcoder/internal/analysis"
	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/events"
	"github.com/openstream/transcoder/internal/ffmpeg"
	"github.com/openstream/transcoder/internal/manifest"
	"github.com/openstream/transcoder/internal/models"
	"github.com/openstream/transcoder/internal/observability"
	"github.com/openstream/transcoder/internal/sprites"
	"github.com/openstream/transcoder/internal/storage"
)

// crf720pPenalty coarsens the 720p rendition by one CRF step relative to the
// analyzer's choice, trading quality for size at the lower resolution.
const crf720pPenalty = 1

// SlowLane executes one step of the high-quality chain per invocation.
// Progress crosses process boundaries only as the step field of a re-published
// continuation event; nothing is assumed about scratch surviving between
// steps, so every step downloads the source fresh.
type SlowLane struct {
	store     storage.Store
	runner    ffmpeg.Runner
	prober    ffmpeg.Prober
	analyzer  *analysis.Analyzer
	publisher events.Publisher
	scratch   *Scratch
	topics    config.KafkaTopics
	bucket    string
	ffmpegBin string
	logger    *slog.Logger
}

// NewSlowLane wires the slow lane.
func NewSlowLane(
	store storage.Store,
	runner ffmpeg.Runner,
	prober ffmpeg.Prober,
	analyzer *analysis.Analyzer,
	publisher events.Publisher,
	scratch *Scratch,
	topics config.KafkaTopics,
	bucket, ffmpegBin string,
	logger *slog.Logger,
) *SlowLane {
	return &SlowLane{
		store:     store,
		runner:    runner,
		prober:    prober,
		analyzer:  analyzer,
		publisher: publisher,
		scratch:   scratch,
		topics:    topics,
		bucket:    bucket,
		ffmpegBin: ffmpegBin,
		logger:    logger,
	}
}

// Process runs exactly one step and either re-publishes the next one or
// terminates the chain. An error returned here stalls the chain at this step;
// no further continuation is published.
func (s *SlowLane) Process(ctx context.Context, job models.TranscodeJob, heartbeat func(context.Context) error) error {
	step, err := models.ParseStep(string(job.Step))
	if err != nil {
		observability.StepsTotal.WithLabelValues("invalid", "error").Inc()
		return err
	}

	var stepErr error
	switch step {
	case models.StepEncode720p:
		stepErr = s.encodeStep(ctx, job, step, 720, heartbeat)
	case models.StepEncode1080p:
		stepErr = s.encodeStep(ctx, job, step, 1080, heartbeat)
	case models.StepGenerateSprites:
		stepErr = s.generateSprites(ctx, job, heartbeat)
	default:
		stepErr = fmt.Errorf("no handler for step %s", step)
	}

	status := "ok"
	if stepErr != nil {
		status = "error"
	}
	observability.StepsTotal.WithLabelValues(step.String(), status).Inc()
	return stepErr
}

// encodeStep is the shared 720p/1080p body: fresh download, complexity
// analysis, encode at the chosen CRF, upload, manifest rebuild, then either
// the completion event (after 1080p) or nothing, and finally the continuation
// re-publish. The 720p rendition carries a fixed +1 CRF penalty.
func (s *SlowLane) encodeStep(ctx context.Context, job models.TranscodeJob, step models.SlowLaneStep, height int, heartbeat func(context.Context) error) error {
	log := s.logger.With(
		slog.String("video_id", job.VideoID),
		slog.String("step", step.String()),
	)
	bucket := jobBucket(job.Bucket, s.bucket)
	label := fmt.Sprintf("%dp", height)

	dir, err := s.scratch.Dir(job.VideoID, step.String())
	if err != nil {
		return fmt.Errorf("%s: creating scratch: %w", step, err)
	}
	defer s.scratch.Remove(dir)

	source := filepath.Join(dir, "source"+sourceExt(job))
	if err := s.store.Download(ctx, bucket, job.StoragePath, source); err != nil {
		return fmt.Errorf("%s: downloading source: %w", step, err)
	}

	result := s.analyzer.Analyze(ctx, source)
	crf := result.CRF
	if height == 720 {
		crf += crf720pPenalty
	}

	renditionDir := filepath.Join(dir, label)
	if err := os.MkdirAll(renditionDir, 0o755); err != nil {
		return fmt.Errorf("%s: creating rendition dir: %w", step, err)
	}

	encodeStart := time.Now()
	cmd := ffmpeg.RenditionCommand(s.ffmpegBin, source, renditionDir, ffmpeg.SlowRendition(height, crf))
	if err := s.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: step.String(), Heartbeat: heartbeat}); err != nil {
		return fmt.Errorf("%s: encoding: %w", step, err)
	}
	observability.EncodeSeconds.WithLabelValues(label).Observe(time.Since(encodeStart).Seconds())

	if err := s.store.UploadDir(ctx, renditionDir, bucket, path.Join(hlsPrefix(job.VideoID), label)); err != nil {
		return fmt.Errorf("%s: uploading rendition: %w", step, err)
	}

	heights := []int{480, 720}
	if height == 1080 {
		heights = []int{480, 720, 1080}
	}
	manifestURL, err := s.uploadManifest(ctx, job, dir, bucket, heights)
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}

	log.Info("rendition uploaded",
		slog.Int("crf", crf),
		slog.Float64("complexity_score", result.Score),
		slog.String("manifest", manifestURL),
	)

	if height == 1080 {
		complete := events.VideoComplete{
			VideoID:         job.VideoID,
			CRFUsed:         crf,
			ComplexityScore: result.Score,
			Resolutions:     []string{"480p", "720p", "1080p"},
			HLSManifest:     manifestURL,
			Timestamp:       time.Now().UnixMilli(),
		}
		if err := s.publisher.Publish(ctx, s.topics.VideoComplete, job.VideoID, complete); err != nil {
			return fmt.Errorf("%s: publishing completion: %w", step, err)
		}
	}

	return s.republish(ctx, job, step)
}

// republish persists chain progress by sending the inbound schema back to the
// slow topic with the step advanced. Only called after this step's output is
// durably uploaded.
func (s *SlowLane) republish(ctx context.Context, job models.TranscodeJob, step models.SlowLaneStep) error {
	next, ok := step.Next()
	if !ok {
		return nil
	}
	continuation := job
	continuation.Step = next
	if err := s.publisher.Publish(ctx, s.topics.TranscodeSlow, job.VideoID, continuation); err != nil {
		return fmt.Errorf("%s: publishing continuation %s: %w", step, next, err)
	}
	s.logger.Info("continuation published",
		slog.String("video_id", job.VideoID),
		slog.String("next_step", next.String()),
	)
	return nil
}

// generateSprites is the terminal step: sprite sheet plus WebVTT index. An
// unprobeable source ends the chain with a failed event rather than an error.
func (s *SlowLane) generateSprites(ctx context.Context, job models.TranscodeJob, heartbeat func(context.Context) error) error {
	log := s.logger.With(
		slog.String("video_id", job.VideoID),
		slog.String("step", models.StepGenerateSprites.String()),
	)
	bucket := jobBucket(job.Bucket, s.bucket)

	dir, err := s.scratch.Dir(job.VideoID, models.StepGenerateSprites.String())
	if err != nil {
		return fmt.Errorf("generate-sprites: creating scratch: %w", err)
	}
	defer s.scratch.Remove(dir)

	source := filepath.Join(dir, "source"+sourceExt(job))
	if err := s.store.Download(ctx, bucket, job.StoragePath, source); err != nil {
		return fmt.Errorf("generate-sprites: downloading source: %w", err)
	}

	duration, err := s.prober.ProbeDuration(ctx, source)
	if err != nil {
		log.Warn("duration probe failed", slog.String("error", err.Error()))
		duration = 0
	}
	if duration <= 0 {
		s.emitSpritesFailed(ctx, job, "source duration unknown")
		return nil
	}

	grid, err := sprites.PlanGrid(duration)
	if err != nil {
		s.emitSpritesFailed(ctx, job, err.Error())
		return nil
	}

	sheet := filepath.Join(dir, sprites.SheetName)
	cmd := ffmpeg.SpriteSheetCommand(s.ffmpegBin, source, sheet, grid.Interval, grid.Cols, grid.Rows)
	if err := s.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: "generate-sprites", Heartbeat: heartbeat}); err != nil {
		return fmt.Errorf("generate-sprites: rendering sheet: %w", err)
	}

	vtt := filepath.Join(dir, sprites.VTTName)
	if err := os.WriteFile(vtt, []byte(sprites.WriteVTT(grid)), 0o644); err != nil {
		return fmt.Errorf("generate-sprites: writing vtt: %w", err)
	}

	sheetURL, err := s.store.Upload(ctx, sheet, bucket, path.Join(spritesPrefix(job.VideoID), sprites.SheetName))
	if err != nil {
		return fmt.Errorf("generate-sprites: uploading sheet: %w", err)
	}
	vttURL, err := s.store.Upload(ctx, vtt, bucket, path.Join(spritesPrefix(job.VideoID), sprites.VTTName))
	if err != nil {
		return fmt.Errorf("generate-sprites: uploading vtt: %w", err)
	}

	done := events.SpritesComplete{
		VideoID:    job.VideoID,
		SpritePath: sheetURL,
		VTTPath:    vttURL,
		FrameCount: grid.Count,
		Interval:   grid.Interval,
		Cols:       grid.Cols,
		Rows:       grid.Rows,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := s.publisher.Publish(ctx, s.topics.SpritesComplete, job.VideoID, done); err != nil {
		return fmt.Errorf("generate-sprites: publishing completion: %w", err)
	}

	log.Info("sprites uploaded",
		slog.Int("frames", grid.Count),
		slog.Float64("interval", grid.Interval),
		slog.Int("cols", grid.Cols),
		slog.Int("rows", grid.Rows),
	)
	return nil
}

// emitSpritesFailed publishes the non-fatal terminal outcome.
func (s *SlowLane) emitSpritesFailed(ctx context.Context, job models.TranscodeJob, reason string) {
	failed := events.SpritesComplete{
		VideoID:   job.VideoID,
		Failed:    true,
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.publisher.Publish(ctx, s.topics.SpritesComplete, job.VideoID, failed); err != nil {
		s.logger.Error("publishing sprites-failed event failed",
			slog.String("video_id", job.VideoID),
			slog.String("error", err.Error()),
		)
	}
}

// uploadManifest rebuilds and re-uploads the master manifest with the
// renditions produced so far. Idempotent; later builds strictly extend
// earlier ones.
func (s *SlowLane) uploadManifest(ctx context.Context, job models.TranscodeJob, dir, bucket string, heights []int) (string, error) {
	data, err := manifest.Build(heights)
	if err != nil {
		return "", fmt.Errorf("building manifest: %w", err)
	}
	local := filepath.Join(dir, "master.m3u8")
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	url, err := s.store.Upload(ctx, local, bucket, masterManifestPath(job.VideoID))
	if err != nil {
		return "", fmt.Errorf("uploading manifest: %w", err)
	}
	return url, nil
}
