package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/events"
	"github.com/openstream/transcoder/internal/ffmpeg"
	"github.com/openstream/transcoder/internal/manifest"
	"github.com/openstream/transcoder/internal/models"
	"github.com/openstream/transcoder/internal/observability"
	"github.com/openstream/transcoder/internal/storage"
)

// ClipLane transcodes short pre-extracted clips into a two-rendition HLS set
// with a single encoder invocation. Clip sources are short enough that one
// decode feeding two encode branches beats two sequential passes.
type ClipLane struct {
	store     storage.Store
	runner    ffmpeg.Runner
	publisher events.Publisher
	scratch   *Scratch
	topics    config.KafkaTopics
	bucket    string
	ffmpegBin string
	logger    *slog.Logger
}

// NewClipLane wires the clip lane.
func NewClipLane(
	store storage.Store,
	runner ffmpeg.Runner,
	publisher events.Publisher,
	scratch *Scratch,
	topics config.KafkaTopics,
	bucket, ffmpegBin string,
	logger *slog.Logger,
) *ClipLane {
	return &ClipLane{
		store:     store,
		runner:    runner,
		publisher: publisher,
		scratch:   scratch,
		topics:    topics,
		bucket:    bucket,
		ffmpegBin: ffmpegBin,
		logger:    logger,
	}
}

// Process runs one clip job end to end. Every failure path emits clip.failed;
// scratch is removed in all cases.
func (c *ClipLane) Process(ctx context.Context, job models.ClipJob, heartbeat func(context.Context) error) error {
	log := c.logger.With(
		slog.String("clip_id", job.ClipID),
		slog.String("video_id", job.ParentVideoID),
	)
	bucket := jobBucket(job.Bucket, c.bucket)

	manifestURL, err := c.transcode(ctx, job, bucket, heartbeat, log)
	if err != nil {
		c.emitFailed(ctx, job, err)
		return err
	}

	ready := events.ClipReady{
		ClipID:      job.ClipID,
		HLSManifest: manifestURL,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := c.publisher.Publish(ctx, c.topics.ClipReady, job.ClipID, ready); err != nil {
		return fmt.Errorf("publishing clip.ready: %w", err)
	}

	log.Info("clip ready", slog.String("manifest", manifestURL))
	return nil
}

func (c *ClipLane) transcode(ctx context.Context, job models.ClipJob, bucket string, heartbeat func(context.Context) error, log *slog.Logger) (string, error) {
	dir, err := c.scratch.Dir(job.ClipID, "clip")
	if err != nil {
		return "", fmt.Errorf("creating scratch: %w", err)
	}
	defer c.scratch.Remove(dir)

	source := filepath.Join(dir, "clip"+path.Ext(job.StoragePath))
	if err := c.store.Download(ctx, bucket, job.StoragePath, source); err != nil {
		return "", fmt.Errorf("downloading clip source: %w", err)
	}

	outDir := filepath.Join(dir, "out")
	for _, sub := range []string{"480p", "720p"} {
		if err := os.MkdirAll(filepath.Join(outDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating output dirs: %w", err)
		}
	}

	crf := job.CRF
	if crf == 0 {
		crf = ffmpeg.FastLaneCRF
	}

	encodeStart := time.Now()
	cmd := ffmpeg.ClipCommand(c.ffmpegBin, source, outDir, crf)
	if err := c.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: "encode-clip", Heartbeat: heartbeat}); err != nil {
		return "", fmt.Errorf("encoding clip: %w", err)
	}
	observability.EncodeSeconds.WithLabelValues("clip").Observe(time.Since(encodeStart).Seconds())

	data, err := manifest.Build([]int{480, 720})
	if err != nil {
		return "", fmt.Errorf("building clip manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "master.m3u8"), data, 0o644); err != nil {
		return "", fmt.Errorf("writing clip manifest: %w", err)
	}

	prefix := clipPrefix(job.ClipID)
	if err := c.store.UploadDir(ctx, outDir, bucket, prefix); err != nil {
		return "", fmt.Errorf("uploading clip output: %w", err)
	}

	log.Info("clip transcoded", slog.Int("crf", crf))
	return path.Join(prefix, "master.m3u8"), nil
}

// emitFailed publishes clip.failed with the cause.
func (c *ClipLane) emitFailed(ctx context.Context, job models.ClipJob, cause error) {
	failed := events.ClipFailed{
		ClipID:    job.ClipID,
		Reason:    cause.Error(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.publisher.Publish(ctx, c.topics.ClipFailed, job.ClipID, failed); err != nil {
		c.logger.Error("publishing clip.failed event failed",
			slog.String("clip_id", job.ClipID),
			slog.String("error", err.Error()),
		)
	}
}
