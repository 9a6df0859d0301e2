package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker metrics. Names follow the platform's openstream_* convention.
var (
	// JobsTotal counts processed jobs by lane and terminal status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openstream_transcode_jobs_total",
		Help: "Total transcode jobs processed",
	}, []string{"lane", "status"})

	// JobSeconds observes wall time per job attempt.
	JobSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openstream_transcode_job_seconds",
		Help:    "Time spent processing a transcode job",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"lane"})

	// EncodeSeconds observes wall time per rendition encode.
	EncodeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openstream_transcode_encode_seconds",
		Help:    "Time spent inside the encoder per rendition",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"rendition"})

	// ActiveJobs tracks jobs currently being processed by this worker.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openstream_transcode_active_jobs",
		Help: "Jobs currently being processed",
	})

	// HeartbeatsTotal counts supervisor liveness callbacks, including failed ones.
	HeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openstream_transcode_heartbeats_total",
		Help: "Supervisor liveness heartbeats",
	}, []string{"status"})

	// CommitFailuresTotal counts best-effort offset commit failures.
	CommitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openstream_transcode_commit_failures_total",
		Help: "Consumer offset commit failures (non-fatal)",
	})

	// StepsTotal counts slow-lane step executions by step and outcome.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openstream_transcode_steps_total",
		Help: "Slow-lane step executions",
	}, []string{"step", "status"})
)
