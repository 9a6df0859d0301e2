package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openstream/transcoder/internal/analysis"
	"github.com/openstream/transcoder/internal/bus"
	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/ffmpeg"
)

// Shared test doubles for the pipeline suite.

type fakeStore struct {
	mu          sync.Mutex
	downloadErr error
	uploads     []string // "bucket/objectPath"
	uploadDirs  []string // "bucket/objectPrefix"
}

func (s *fakeStore) Download(_ context.Context, _, _, destFile string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destFile, []byte("video"), 0o644)
}

func (s *fakeStore) Upload(_ context.Context, _, bucket, objectPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url := path.Join(bucket, objectPath)
	s.uploads = append(s.uploads, url)
	return url, nil
}

func (s *fakeStore) UploadDir(_ context.Context, _, bucket, objectPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadDirs = append(s.uploadDirs, path.Join(bucket, objectPrefix))
	return nil
}

type fakeRunner struct {
	mu     sync.Mutex
	failOn map[string]error // Description -> error
	runs   []*ffmpeg.Command
	descs  []string
}

func (r *fakeRunner) Run(_ context.Context, cmd *ffmpeg.Command, opts ffmpeg.RunOptions) error {
	r.mu.Lock()
	r.runs = append(r.runs, cmd)
	r.descs = append(r.descs, opts.Description)
	r.mu.Unlock()
	if err, ok := r.failOn[opts.Description]; ok {
		return err
	}
	return nil
}

func (r *fakeRunner) ran(description string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.descs {
		if d == description {
			return true
		}
	}
	return false
}

func (r *fakeRunner) argvFor(description string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.descs {
		if d == description {
			return strings.Join(r.runs[i].Args, " ")
		}
	}
	return ""
}

type published struct {
	Topic   string
	Key     string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type stubProber struct {
	duration    float64
	durationErr error
	frames      []ffmpeg.ProbeFrame
	framesErr   error
}

func (p *stubProber) ProbeDuration(context.Context, string) (float64, error) {
	return p.duration, p.durationErr
}

func (p *stubProber) ProbeFrames(context.Context, string, time.Duration) ([]ffmpeg.ProbeFrame, error) {
	return p.frames, p.framesErr
}

type fakeLocker struct {
	held       bool
	acquireErr error
	acquired   []string
	released   []string
	extended   int
}

func (l *fakeLocker) Acquire(_ context.Context, id string) (bool, error) {
	l.acquired = append(l.acquired, id)
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	return !l.held, nil
}

func (l *fakeLocker) Release(_ context.Context, id string) error {
	l.released = append(l.released, id)
	return nil
}

func (l *fakeLocker) Extend(context.Context, string) error {
	l.extended++
	return nil
}

type fakeBus struct {
	commits []bus.Message
}

func (b *fakeBus) Fetch(context.Context) (bus.Message, error) {
	return bus.Message{}, context.Canceled
}

func (b *fakeBus) Commit(_ context.Context, msg bus.Message) error {
	b.commits = append(b.commits, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTopics() config.KafkaTopics {
	return config.KafkaTopics{
		TranscodeFast:    "video.transcode.fast",
		TranscodeSlow:    "video.transcode.slow",
		ClipExtract:      "clip.extract.requests",
		Playable:         "video.playable",
		SubtitleRequests: "video.subtitle.requests",
		VideoComplete:    "video.complete",
		SpritesComplete:  "video.sprites.complete",
		ClipReady:        "clip.ready",
		ClipFailed:       "clip.failed",
	}
}

func testScratch(t *testing.T) *Scratch {
	t.Helper()
	return NewScratch(config.ScratchConfig{BaseDir: t.TempDir(), MaxAge: time.Hour}, testLogger())
}

// scratchLeftovers lists transcode-* directories remaining under the scratch
// base dir.
func scratchLeftovers(t *testing.T, s *Scratch) []string {
	t.Helper()
	entries, err := os.ReadDir(s.baseDir)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), scratchPrefix) {
			dirs = append(dirs, filepath.Join(s.baseDir, e.Name()))
		}
	}
	return dirs
}

func keyframeFrames(total, keyframes int) []ffmpeg.ProbeFrame {
	out := make([]ffmpeg.ProbeFrame, total)
	for i := 0; i < keyframes; i++ {
		out[i].KeyFrame = 1
	}
	return out
}

func testAnalyzer(p ffmpeg.Prober) *analysis.Analyzer {
	return analysis.New(p, 30*time.Second, testLogger())
}
