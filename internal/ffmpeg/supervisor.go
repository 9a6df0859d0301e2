package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// errTailBytes is how much trailing stderr a failure error carries.
const errTailBytes = 500

// Progress is the encoder state parsed from the stderr stats line.
type Progress struct {
	Frame int64
	FPS   float64
	Time  time.Duration
}

// RunOptions configures one supervised invocation.
type RunOptions struct {
	// Description names the operation in logs (e.g. "encode-720p").
	Description string

	// Heartbeat, when set, is invoked periodically while the process runs.
	// It keeps the owning consumer-group membership alive during encodes
	// that exceed the bus session timeout. Failures are logged and
	// swallowed; they never abort the encode.
	Heartbeat func(context.Context) error
}

// Runner is the narrow supervisor contract the pipelines depend on. The rest
// of the system never touches the binary's invocation mechanics, so an
// in-process codec library could substitute without changing callers.
type Runner interface {
	Run(ctx context.Context, cmd *Command, opts RunOptions) error
}

// Supervisor runs transcoder commands with liveness heartbeats, progress
// extraction, and bounded diagnostics on failure.
type Supervisor struct {
	heartbeatPeriod time.Duration
	progressPeriod  time.Duration
	nice            int
	logger          *slog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(heartbeatPeriod, progressPeriod time.Duration, nice int, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		heartbeatPeriod: heartbeatPeriod,
		progressPeriod:  progressPeriod,
		nice:            nice,
		logger:          logger,
	}
}

var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// Run implements Runner. It starts the child, lowers its scheduling priority
// where supported, parses stderr for progress markers, and fires the
// heartbeat until the process exits. On nonzero exit the returned error
// carries the last ~500 bytes of stderr.
func (s *Supervisor) Run(ctx context.Context, cmd *Command, opts RunOptions) error {
	child := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)

	stderr, err := child.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s: getting stderr pipe: %w", opts.Description, err)
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("%s: starting %s: %w", opts.Description, cmd.Binary, err)
	}

	pid := child.Process.Pid
	s.renice(pid, opts.Description)

	s.logger.Info("transcoder started",
		slog.String("operation", opts.Description),
		slog.Int("pid", pid),
	)

	var (
		tailMu sync.Mutex
		tail   []byte
	)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		s.consumeStderr(stderr, pid, opts.Description, func(line []byte) {
			tailMu.Lock()
			tail = append(tail, line...)
			tail = append(tail, '\n')
			if len(tail) > errTailBytes {
				tail = tail[len(tail)-errTailBytes:]
			}
			tailMu.Unlock()
		})
	}()

	// Heartbeat timer races process exit; it must be stopped on exit so a
	// dangling tick never fires after completion.
	heartbeatDone := make(chan struct{})
	if opts.Heartbeat != nil {
		go s.runHeartbeat(ctx, opts, heartbeatDone)
	} else {
		close(heartbeatDone)
	}

	waitErr := child.Wait()
	<-stderrDone
	if opts.Heartbeat != nil {
		heartbeatDone <- struct{}{}
	}

	if waitErr != nil {
		tailMu.Lock()
		diag := string(tail)
		tailMu.Unlock()
		return fmt.Errorf("%s: transcoder failed: %w (stderr: %s)", opts.Description, waitErr, diag)
	}

	s.logger.Info("transcoder finished", slog.String("operation", opts.Description))
	return nil
}

// runHeartbeat fires the liveness callback on a fixed interval until signaled.
func (s *Supervisor) runHeartbeat(ctx context.Context, opts RunOptions, done chan struct{}) {
	ticker := time.NewTicker(s.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			<-done
			return
		case <-ticker.C:
			if err := opts.Heartbeat(ctx); err != nil {
				s.logger.Warn("heartbeat failed",
					slog.String("operation", opts.Description),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// consumeStderr scans progress markers and keeps the diagnostic tail, logging
// a rate-limited progress summary with child resource stats.
func (s *Supervisor) consumeStderr(r io.Reader, pid int, description string, keep func([]byte)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var progress Progress
	lastLog := time.Now()

	for scanner.Scan() {
		line := scanner.Bytes()
		keep(line)

		updated := false
		if m := frameRe.FindSubmatch(line); m != nil {
			progress.Frame, _ = strconv.ParseInt(string(m[1]), 10, 64)
			updated = true
		}
		if m := fpsRe.FindSubmatch(line); m != nil {
			progress.FPS, _ = strconv.ParseFloat(string(m[1]), 64)
			updated = true
		}
		if m := timeRe.FindSubmatch(line); m != nil {
			hours, _ := strconv.Atoi(string(m[1]))
			mins, _ := strconv.Atoi(string(m[2]))
			secs, _ := strconv.Atoi(string(m[3]))
			progress.Time = time.Duration(hours)*time.Hour +
				time.Duration(mins)*time.Minute +
				time.Duration(secs)*time.Second
			updated = true
		}

		if updated && time.Since(lastLog) >= s.progressPeriod {
			lastLog = time.Now()
			attrs := []any{
				slog.String("operation", description),
				slog.Int64("frame", progress.Frame),
				slog.Float64("fps", progress.FPS),
				slog.Duration("encoded", progress.Time),
			}
			if cpu, rss, ok := childStats(pid); ok {
				attrs = append(attrs,
					slog.Float64("cpu_percent", cpu),
					slog.Uint64("rss_bytes", rss),
				)
			}
			s.logger.Info("encode progress", attrs...)
		}
	}
}

// renice lowers the child's scheduling priority so long encodes do not starve
// co-located jobs. Best-effort; unsupported platforms just keep the default.
func (s *Supervisor) renice(pid int, description string) {
	if s.nice <= 0 {
		return
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, s.nice); err != nil {
		s.logger.Debug("renice failed",
			slog.String("operation", description),
			slog.String("error", err.Error()),
		)
	}
}

// childStats samples the child's CPU and memory usage.
func childStats(pid int) (cpuPercent float64, rssBytes uint64, ok bool) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, 0, false
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return 0, 0, false
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return cpu, 0, true
	}
	return cpu, mem.RSS, true
}
