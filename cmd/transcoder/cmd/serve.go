package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openstream/transcoder/internal/analysis"
	"github.com/openstream/transcoder/internal/bus"
	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/events"
	"github.com/openstream/transcoder/internal/ffmpeg"
	"github.com/openstream/transcoder/internal/joblock"
	"github.com/openstream/transcoder/internal/models"
	"github.com/openstream/transcoder/internal/observability"
	"github.com/openstream/transcoder/internal/ops"
	"github.com/openstream/transcoder/internal/pipeline"
	"github.com/openstream/transcoder/internal/storage"
	"github.com/openstream/transcoder/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcoding worker",
	Long: `Start the transcoding worker.

The worker will:
1. Join the Kafka consumer group on the topics of its configured lanes
2. Process one job at a time: fast 480p, slow 720p/1080p step chain, or clips
3. Upload renditions, manifests, thumbnails, and sprites to the object store
4. Publish playable/complete/failed events back to the platform

Lane affinity comes from worker.lanes (fast, slow, clip, or all), so a pool can
run dedicated fast and slow members against the same topics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSlice("lanes", nil, "lanes this worker accepts (overrides worker.lanes)")
	serveCmd.Flags().String("group-id", "", "Kafka consumer group id (overrides kafka.group_id)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if lanes, _ := cmd.Flags().GetStringSlice("lanes"); len(lanes) > 0 {
		cfg.Worker.Lanes = lanes
	}
	if groupID, _ := cmd.Flags().GetString("group-id"); groupID != "" {
		cfg.Kafka.GroupID = groupID
	}

	initLogging(cfg)
	logger := slog.Default()

	info := version.GetInfo()
	logger.Info("transcoder starting",
		slog.String("version", info.Version),
		slog.String("commit", info.Commit),
		slog.String("built", info.Date),
		slog.String("go", info.GoVersion),
		slog.String("platform", info.Platform),
		slog.Any("lanes", cfg.Worker.Lanes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scratch := pipeline.NewScratch(cfg.Scratch, observability.WithComponent(logger, "scratch"))
	sweeper, err := scratch.StartSweeper(cfg.Scratch.SweepCron)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	store, err := storage.NewClient(cfg.Storage, observability.WithComponent(logger, "storage"))
	if err != nil {
		return err
	}

	locker := newLocker(ctx, cfg, logger)

	publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, observability.WithComponent(logger, "publisher"))
	defer publisher.Close()

	lanes := models.NewWorkerLanes(cfg.Worker.Lanes)
	consumer := bus.NewConsumer(cfg.Kafka, consumerTopics(lanes, cfg.Kafka.Topics),
		observability.WithComponent(logger, "consumer"))
	defer consumer.Close()

	ffmpegBin := cfg.FFmpeg.BinaryPath
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	probeBin := cfg.FFmpeg.ProbePath
	if probeBin == "" {
		probeBin = "ffprobe"
	}

	supervisor := ffmpeg.NewSupervisor(cfg.FFmpeg.HeartbeatPeriod, cfg.FFmpeg.ProgressPeriod,
		cfg.Worker.NicePriority, observability.WithComponent(logger, "supervisor"))
	prober := ffmpeg.NewFFprobe(probeBin)
	analyzer := analysis.New(prober, cfg.FFmpeg.AnalysisWindow,
		observability.WithComponent(logger, "analysis"))

	fast := pipeline.NewFastLane(store, supervisor, prober, publisher, scratch,
		cfg.Kafka.Topics, cfg.Storage.Bucket, ffmpegBin,
		observability.WithComponent(logger, "fastlane"))
	slow := pipeline.NewSlowLane(store, supervisor, prober, analyzer, publisher, scratch,
		cfg.Kafka.Topics, cfg.Storage.Bucket, ffmpegBin,
		observability.WithComponent(logger, "slowlane"))
	clip := pipeline.NewClipLane(store, supervisor, publisher, scratch,
		cfg.Kafka.Topics, cfg.Storage.Bucket, ffmpegBin,
		observability.WithComponent(logger, "cliplane"))

	router := pipeline.NewRouter(lanes, cfg.Kafka.Topics, consumer, locker,
		fast, slow, clip, cfg.Worker.JobTimeout,
		observability.WithComponent(logger, "router"))

	opsServer := ops.NewServer(cfg.Ops, observability.WithComponent(logger, "ops"))
	opsServer.Start()

	runErr := router.Run(ctx)
	if runErr == context.Canceled {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("transcoder stopped")
	return runErr
}

// newLocker connects the Redis job lock. Fencing is best-effort: if Redis is
// unreachable at startup the worker runs unfenced rather than refusing to
// start.
func newLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) joblock.Locker {
	if cfg.Redis.URL == "" {
		return joblock.Noop{}
	}
	locker, err := joblock.New(ctx, cfg.Redis.URL, cfg.Redis.LockPrefix, cfg.Redis.LockTTL,
		observability.WithComponent(logger, "joblock"))
	if err != nil {
		logger.Warn("redis unavailable, running without job fencing",
			slog.String("error", err.Error()))
		return joblock.Noop{}
	}
	return locker
}

// consumerTopics lists the inbound topics for the lanes this worker accepts.
func consumerTopics(lanes models.WorkerLanes, topics config.KafkaTopics) []string {
	var out []string
	if lanes.Accepts(models.LaneFast) {
		out = append(out, topics.TranscodeFast)
	}
	if lanes.Accepts(models.LaneSlow) {
		out = append(out, topics.TranscodeSlow)
	}
	if lanes.Accepts(models.LaneClip) {
		out = append(out, topics.ClipExtract)
	}
	return out
}
