package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openstream/transcoder/internal/config"
)

const scratchPrefix = "transcode-"

// Scratch hands out job-scoped working directories and sweeps up directories
// orphaned by crashed or restarted workers. Every directory name carries a
// random suffix so two workers racing on the same job never share files.
type Scratch struct {
	baseDir string
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewScratch creates the manager. An empty base dir means the system temp dir.
func NewScratch(cfg config.ScratchConfig, logger *slog.Logger) *Scratch {
	base := cfg.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	return &Scratch{baseDir: base, maxAge: cfg.MaxAge, logger: logger}
}

// Dir creates a fresh scratch directory for one job attempt. Parts beyond the
// id (e.g. a step name) become part of the directory name for debuggability.
func (s *Scratch) Dir(id string, parts ...string) (string, error) {
	name := scratchPrefix + id
	for _, p := range parts {
		name += "-" + p
	}
	name += "-" + uuid.NewString()

	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove deletes a scratch directory. Cleanup is guaranteed on every exit
// path, so failures are logged rather than returned.
func (s *Scratch) Remove(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("scratch cleanup failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// Sweep removes scratch directories older than the configured max age. These
// are left behind when a worker dies mid-job; a live job's directory is
// always younger than the age cutoff because encodes finish well within it.
func (s *Scratch) Sweep() {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		s.logger.Warn("scratch sweep failed",
			slog.String("dir", s.baseDir),
			slog.String("error", err.Error()),
		)
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), scratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("removing orphaned scratch failed",
				slog.String("dir", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("swept orphaned scratch directories", slog.Int("removed", removed))
	}
}

// StartSweeper runs Sweep once immediately, then on the given cron schedule.
// The returned cron is already started; the caller stops it on shutdown.
func (s *Scratch) StartSweeper(spec string) (*cron.Cron, error) {
	s.Sweep()

	c := cron.New()
	if _, err := c.AddFunc(spec, s.Sweep); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
