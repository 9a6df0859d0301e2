package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ProbeResult contains the prober output the worker cares about.
type ProbeResult struct {
	Format ProbeFormat `json:"format"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

// DurationSeconds parses the container duration. Returns 0 when the field is
// missing or unparseable; callers treat that as "unknown".
func (r *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

// ProbeFrame is one sampled frame's classification.
type ProbeFrame struct {
	KeyFrame int `json:"key_frame"`
}

type frameList struct {
	Frames []ProbeFrame `json:"frames"`
}

// Prober runs the external prober binary.
type Prober interface {
	// ProbeDuration returns the container duration in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// ProbeFrames classifies every video frame in the first window of the
	// file as keyframe or not.
	ProbeFrames(ctx context.Context, path string, window time.Duration) ([]ProbeFrame, error)
}

// FFprobe is the binary-backed Prober.
type FFprobe struct {
	binary  string
	timeout time.Duration
}

// NewFFprobe creates a prober for the given binary path.
func NewFFprobe(binary string) *FFprobe {
	return &FFprobe{binary: binary, timeout: 60 * time.Second}
}

// ProbeDuration implements Prober.
func (p *FFprobe) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	output, err := exec.CommandContext(ctx, p.binary, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("parsing probe output: %w", err)
	}
	return result.DurationSeconds(), nil
}

// ProbeFrames implements Prober.
func (p *FFprobe) ProbeFrames(ctx context.Context, path string, window time.Duration) ([]ProbeFrame, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-read_intervals", fmt.Sprintf("%%+%d", int(window.Seconds())),
		"-show_entries", "frame=key_frame",
		path,
	}

	output, err := exec.CommandContext(ctx, p.binary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("probing frames of %s: %w", path, err)
	}

	var result frameList
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing frame probe output: %w", err)
	}
	return result.Frames, nil
}
