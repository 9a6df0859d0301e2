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

// Object store layout. Each artifact kind gets its own prefix, keyed by video
// id, matching the layout the playback and subtitle services resolve against.
func hlsPrefix(videoID string) string     { return path.Join("hls", videoID) }
func thumbnailPath(videoID string) string { return path.Join("thumbnails", videoID+".jpg") }
func audioPath(videoID string) string     { return path.Join("audio", videoID+".wav") }
func spritesPrefix(videoID string) string { return path.Join("sprites", videoID) }
func clipPrefix(clipID string) string     { return path.Join("clips", clipID) }
func masterManifestPath(videoID string) string {
	return path.Join(hlsPrefix(videoID), "master.m3u8")
}

// FastLane produces the instant 480p deliverable: one download, one encode,
// one playable event. Everything except the download and the encode itself is
// best-effort.
type FastLane struct {
	store     storage.Store
	runner    ffmpeg.Runner
	prober    ffmpeg.Prober
	publisher events.Publisher
	scratch   *Scratch
	topics    config.KafkaTopics
	bucket    string
	ffmpegBin string
	logger    *slog.Logger
}

// NewFastLane wires the fast lane.
func NewFastLane(
	store storage.Store,
	runner ffmpeg.Runner,
	prober ffmpeg.Prober,
	publisher events.Publisher,
	scratch *Scratch,
	topics config.KafkaTopics,
	bucket, ffmpegBin string,
	logger *slog.Logger,
) *FastLane {
	return &FastLane{
		store:     store,
		runner:    runner,
		prober:    prober,
		publisher: publisher,
		scratch:   scratch,
		topics:    topics,
		bucket:    bucket,
		ffmpegBin: ffmpegBin,
		logger:    logger,
	}
}

// Process runs the fast lane end to end for one job. On a fatal failure it
// still emits exactly one playable event, with Error set and empty URLs, so
// consumers always hear back.
func (f *FastLane) Process(ctx context.Context, job models.TranscodeJob, heartbeat func(context.Context) error) error {
	log := f.logger.With(slog.String("video_id", job.VideoID))
	bucket := jobBucket(job.Bucket, f.bucket)

	dir, err := f.scratch.Dir(job.VideoID)
	if err != nil {
		f.emitFailure(ctx, job, fmt.Errorf("creating scratch: %w", err))
		return fmt.Errorf("creating scratch: %w", err)
	}
	defer f.scratch.Remove(dir)

	source := filepath.Join(dir, "source"+sourceExt(job))
	if err := f.store.Download(ctx, bucket, job.StoragePath, source); err != nil {
		f.emitFailure(ctx, job, err)
		return fmt.Errorf("downloading source: %w", err)
	}

	duration, err := f.prober.ProbeDuration(ctx, source)
	if err != nil {
		log.Warn("duration probe failed, reporting 0", slog.String("error", err.Error()))
		duration = 0
	}

	thumbnailURL := f.makeThumbnail(ctx, job, source, dir, bucket, log)

	renditionDir := filepath.Join(dir, "480p")
	if err := os.MkdirAll(renditionDir, 0o755); err != nil {
		f.emitFailure(ctx, job, err)
		return fmt.Errorf("creating rendition dir: %w", err)
	}

	encodeStart := time.Now()
	cmd := ffmpeg.RenditionCommand(f.ffmpegBin, source, renditionDir, ffmpeg.FastRendition())
	if err := f.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: "encode-480p", Heartbeat: heartbeat}); err != nil {
		f.emitFailure(ctx, job, err)
		return fmt.Errorf("encoding 480p: %w", err)
	}
	observability.EncodeSeconds.WithLabelValues("480p").Observe(time.Since(encodeStart).Seconds())

	if err := f.store.UploadDir(ctx, renditionDir, bucket, path.Join(hlsPrefix(job.VideoID), "480p")); err != nil {
		f.emitFailure(ctx, job, err)
		return fmt.Errorf("uploading 480p rendition: %w", err)
	}

	manifestURL, err := f.uploadManifest(ctx, job, dir, bucket)
	if err != nil {
		f.emitFailure(ctx, job, err)
		return err
	}

	audioURL := f.extractAudio(ctx, job, source, dir, bucket, heartbeat, log)

	playable := events.Playable{
		VideoID:         job.VideoID,
		HLSManifest480p: manifestURL,
		Duration:        duration,
		ThumbnailURL:    thumbnailURL,
		Resolutions:     []string{"480p"},
		Timestamp:       time.Now().UnixMilli(),
	}
	if err := f.publisher.Publish(ctx, f.topics.Playable, job.VideoID, playable); err != nil {
		return fmt.Errorf("publishing playable event: %w", err)
	}

	if audioURL != "" {
		req := events.SubtitleRequest{
			VideoID:   job.VideoID,
			AudioPath: audioURL,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := f.publisher.Publish(ctx, f.topics.SubtitleRequests, job.VideoID, req); err != nil {
			log.Warn("publishing subtitle request failed", slog.String("error", err.Error()))
		}
	}

	log.Info("fast lane finished",
		slog.Float64("duration", duration),
		slog.String("manifest", manifestURL),
	)
	return nil
}

// makeThumbnail grabs a frame at the 1-second mark. Non-fatal: a failure
// returns an empty URL and the job proceeds without a thumbnail.
func (f *FastLane) makeThumbnail(ctx context.Context, job models.TranscodeJob, source, dir, bucket string, log *slog.Logger) string {
	out := filepath.Join(dir, "thumbnail.jpg")
	cmd := ffmpeg.ThumbnailCommand(f.ffmpegBin, source, out, 1)
	if err := f.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: "thumbnail"}); err != nil {
		log.Warn("thumbnail generation failed, continuing without", slog.String("error", err.Error()))
		return ""
	}
	url, err := f.store.Upload(ctx, out, bucket, thumbnailPath(job.VideoID))
	if err != nil {
		log.Warn("thumbnail upload failed, continuing without", slog.String("error", err.Error()))
		return ""
	}
	return url
}

// extractAudio produces the mono WAV the subtitle service consumes. Non-fatal:
// a failure is skipped silently apart from the log line.
func (f *FastLane) extractAudio(ctx context.Context, job models.TranscodeJob, source, dir, bucket string, heartbeat func(context.Context) error, log *slog.Logger) string {
	out := filepath.Join(dir, "audio.wav")
	cmd := ffmpeg.AudioExtractCommand(f.ffmpegBin, source, out)
	if err := f.runner.Run(ctx, cmd, ffmpeg.RunOptions{Description: "extract-audio", Heartbeat: heartbeat}); err != nil {
		log.Warn("audio extraction failed, skipping subtitles", slog.String("error", err.Error()))
		return ""
	}
	url, err := f.store.Upload(ctx, out, bucket, audioPath(job.VideoID))
	if err != nil {
		log.Warn("audio upload failed, skipping subtitles", slog.String("error", err.Error()))
		return ""
	}
	return url
}

// uploadManifest writes and uploads a master manifest naming only the 480p
// rendition; the slow lane extends it later.
func (f *FastLane) uploadManifest(ctx context.Context, job models.TranscodeJob, dir, bucket string) (string, error) {
	data, err := manifest.Build([]int{480})
	if err != nil {
		return "", fmt.Errorf("building manifest: %w", err)
	}
	local := filepath.Join(dir, "master.m3u8")
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	url, err := f.store.Upload(ctx, local, bucket, masterManifestPath(job.VideoID))
	if err != nil {
		return "", fmt.Errorf("uploading manifest: %w", err)
	}
	return url, nil
}

// emitFailure publishes the error-form playable event. Consumers key off the
// error field, not the empty URLs.
func (f *FastLane) emitFailure(ctx context.Context, job models.TranscodeJob, cause error) {
	playable := events.Playable{
		VideoID:     job.VideoID,
		Resolutions: []string{},
		Timestamp:   time.Now().UnixMilli(),
		Error:       cause.Error(),
	}
	if err := f.publisher.Publish(ctx, f.topics.Playable, job.VideoID, playable); err != nil {
		f.logger.Error("publishing failure event failed",
			slog.String("video_id", job.VideoID),
			slog.String("error", err.Error()),
		)
	}
}

// jobBucket picks the event's bucket when present, else the worker default.
func jobBucket(fromJob, fallback string) string {
	if fromJob != "" {
		return fromJob
	}
	return fallback
}

// sourceExt preserves the original extension so the prober and encoder see the
// container type they expect.
func sourceExt(job models.TranscodeJob) string {
	if ext := path.Ext(job.OriginalFilename); ext != "" {
		return ext
	}
	if ext := path.Ext(job.StoragePath); ext != "" {
		return ext
	}
	return ".mp4"
}
