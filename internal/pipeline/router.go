// Package pipeline contains the lane router and the three job pipelines it
// dispatches to, plus the scratch-directory manager they share.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openstream/transcoder/internal/bus"
	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/joblock"
	"github.com/openstream/transcoder/internal/models"
	"github.com/openstream/transcoder/internal/observability"
)

// Bus is the consumer surface the router depends on. Offsets advance only
// through explicit commits after a pipeline attempt finishes.
type Bus interface {
	Fetch(ctx context.Context) (bus.Message, error)
	Commit(ctx context.Context, msg bus.Message) error
}

// Router reads job events off the bus and dispatches them to the pipeline
// matching the topic's lane. Events for lanes this worker does not accept are
// committed untouched so differently configured pools can share topics.
type Router struct {
	lanes      models.WorkerLanes
	topics     config.KafkaTopics
	bus        Bus
	locker     joblock.Locker
	fast       *FastLane
	slow       *SlowLane
	clip       *ClipLane
	jobTimeout time.Duration
	logger     *slog.Logger
}

// NewRouter wires the router.
func NewRouter(
	lanes models.WorkerLanes,
	topics config.KafkaTopics,
	b Bus,
	locker joblock.Locker,
	fast *FastLane,
	slow *SlowLane,
	clip *ClipLane,
	jobTimeout time.Duration,
	logger *slog.Logger,
) *Router {
	return &Router{
		lanes:      lanes,
		topics:     topics,
		bus:        b,
		locker:     locker,
		fast:       fast,
		slow:       slow,
		clip:       clip,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Run is the worker loop: fetch, handle, repeat until the context ends. One
// job is processed at a time; concurrency across jobs comes from running more
// worker instances in the consumer group.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("router started", slog.Any("lanes", r.lanes.Names()))
	for {
		msg, err := r.bus.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("fetch failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		r.Handle(ctx, msg)
	}
}

// Handle processes one fetched event end to end and commits it regardless of
// the pipeline outcome. A pipeline failure is terminal for the event; retry,
// if any, is the bus's redelivery concern, not ours.
func (r *Router) Handle(ctx context.Context, msg bus.Message) {
	lane, ok := r.laneFor(msg.Topic)
	if !ok {
		r.logger.Warn("event on unroutable topic", slog.String("topic", msg.Topic))
		r.commit(ctx, msg)
		return
	}
	if !r.lanes.Accepts(lane) {
		r.commit(ctx, msg)
		return
	}

	jobID, run, err := r.dispatch(lane, msg.Value)
	if err != nil {
		r.logger.Error("undecodable job event",
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()),
		)
		observability.JobsTotal.WithLabelValues(string(lane), "undecodable").Inc()
		r.commit(ctx, msg)
		return
	}

	locked, err := r.locker.Acquire(ctx, jobID)
	if err != nil {
		// Fencing is best-effort: without Redis the worst case is duplicate
		// work, and writes are keyed by job and step.
		r.logger.Warn("lock unavailable, proceeding unfenced",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		locked = true
	} else if !locked {
		r.logger.Info("job already locked by another worker, skipping",
			slog.String("job_id", jobID),
		)
		observability.JobsTotal.WithLabelValues(string(lane), "skipped").Inc()
		r.commit(ctx, msg)
		return
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if r.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, r.jobTimeout)
		defer cancel()
	}

	observability.ActiveJobs.Inc()
	start := time.Now()
	pipeErr := run(jobCtx)
	observability.ActiveJobs.Dec()
	observability.JobSeconds.WithLabelValues(string(lane)).Observe(time.Since(start).Seconds())

	if err := r.locker.Release(ctx, jobID); err != nil {
		r.logger.Warn("lock release failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	status := "ok"
	if pipeErr != nil {
		status = "error"
		r.logger.Error("pipeline attempt failed",
			slog.String("lane", string(lane)),
			slog.String("job_id", jobID),
			slog.String("error", pipeErr.Error()),
		)
	}
	observability.JobsTotal.WithLabelValues(string(lane), status).Inc()

	r.commit(ctx, msg)
}

// dispatch decodes the payload for the lane and returns the job id plus a
// closure running the matching pipeline with a lock-extending heartbeat.
func (r *Router) dispatch(lane models.Lane, payload []byte) (string, func(context.Context) error, error) {
	switch lane {
	case models.LaneFast, models.LaneSlow:
		var job models.TranscodeJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return "", nil, fmt.Errorf("decoding transcode job: %w", err)
		}
		if job.VideoID == "" {
			return "", nil, fmt.Errorf("transcode job missing videoId")
		}
		heartbeat := r.heartbeatFor(job.VideoID)
		if lane == models.LaneFast {
			return job.VideoID, func(ctx context.Context) error {
				return r.fast.Process(ctx, job, heartbeat)
			}, nil
		}
		return job.VideoID, func(ctx context.Context) error {
			return r.slow.Process(ctx, job, heartbeat)
		}, nil

	case models.LaneClip:
		var job models.ClipJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return "", nil, fmt.Errorf("decoding clip job: %w", err)
		}
		if job.ClipID == "" {
			return "", nil, fmt.Errorf("clip job missing clipId")
		}
		heartbeat := r.heartbeatFor(job.ClipID)
		return job.ClipID, func(ctx context.Context) error {
			return r.clip.Process(ctx, job, heartbeat)
		}, nil
	}
	return "", nil, fmt.Errorf("no pipeline for lane %s", lane)
}

// heartbeatFor builds the liveness callback the supervisor fires during long
// encodes. It pushes the job lock TTL out; failures are the supervisor's to
// log and swallow.
func (r *Router) heartbeatFor(jobID string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := r.locker.Extend(ctx, jobID); err != nil {
			observability.HeartbeatsTotal.WithLabelValues("error").Inc()
			return err
		}
		observability.HeartbeatsTotal.WithLabelValues("ok").Inc()
		return nil
	}
}

// laneFor maps a topic to its lane.
func (r *Router) laneFor(topic string) (models.Lane, bool) {
	switch topic {
	case r.topics.TranscodeFast:
		return models.LaneFast, true
	case r.topics.TranscodeSlow:
		return models.LaneSlow, true
	case r.topics.ClipExtract:
		return models.LaneClip, true
	}
	return "", false
}

// commit advances the offset. Best-effort: a failed commit is logged and
// counted, never propagated.
func (r *Router) commit(ctx context.Context, msg bus.Message) {
	if err := r.bus.Commit(ctx, msg); err != nil {
		observability.CommitFailuresTotal.Inc()
		r.logger.Warn("offset commit failed",
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()),
		)
	}
}
