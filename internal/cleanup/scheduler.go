package cleanup

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/tempfile"
)

// Scheduler sweeps orphaned request temp files. Requests release their own
// files; this only catches what a killed process left behind.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, interval, maxAge time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		log:      log,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	s.log.Info().Msg("running initial temp file sweep")
	s.Sweep()

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.log.Info().Msg("cleanup scheduler stopped")
	})
}

// Sweep removes request temp files older than maxAge and returns how many
// were deleted. Only top-level files carrying the temp file prefix are
// considered.
func (s *Scheduler) Sweep() int {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("dir", s.tempDir).Msg("temp dir sweep failed")
		}
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempfile.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("path", path).Msg("failed to delete orphaned temp file")
			}
			continue
		}
		deletedCount++
		deletedSize += info.Size()
		s.log.Info().
			Str("file", entry.Name()).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", info.Size()/1024).
			Msg("deleted orphaned temp file")
	}

	if deletedCount > 0 {
		s.log.Info().
			Int("files", deletedCount).
			Float64("freed_mb", float64(deletedSize)/(1024*1024)).
			Msg("sweep complete")
	}
	return deletedCount
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
