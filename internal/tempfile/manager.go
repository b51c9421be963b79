// Package tempfile tracks the ephemeral files created while serving one
// request and guarantees their removal.
//
// A Manager belongs to exactly one request. It is not safe for concurrent
// use; the pipeline only touches it from the request goroutine.
//
//	tmp := tempfile.NewManager(dir, requestID, log)
//	defer tmp.ReleaseAll()
//	path, err := tmp.Acquire(".wav")
package tempfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Prefix starts the name of every file a Manager creates. The orphan sweeper
// only touches files carrying it.
const Prefix = "asr-"

// Resource is one registered on-disk artifact.
type Resource struct {
	Path      string
	CreatedAt time.Time
	Owner     string
}

// Manager owns the set of temp files it created.
type Manager struct {
	dir       string
	owner     string
	resources map[string]Resource
	log       zerolog.Logger
}

// NewManager creates a manager placing files in dir (os.TempDir() if empty)
// on behalf of owner, usually a request id.
func NewManager(dir, owner string, log zerolog.Logger) *Manager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{
		dir:       dir,
		owner:     owner,
		resources: make(map[string]Resource),
		log:       log,
	}
}

// Acquire creates an empty file with the given suffix and registers it.
func (m *Manager) Acquire(suffix string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(m.dir, Prefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	m.resources[path] = Resource{Path: path, CreatedAt: time.Now(), Owner: m.owner}

	if err := f.Close(); err != nil {
		m.Release(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	m.log.Debug().Str("path", path).Msg("temp file acquired")
	return path, nil
}

// Store acquires a file and copies r into it. The file is released again if
// the copy fails.
func (m *Manager) Store(suffix string, r io.Reader) (string, int64, error) {
	path, err := m.Acquire(suffix)
	if err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		m.Release(path)
		return "", 0, fmt.Errorf("open temp file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		m.Release(path)
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	return path, n, nil
}

// With acquires a file, runs fn with its path and releases the file when fn
// returns, whatever the outcome.
func (m *Manager) With(suffix string, fn func(path string) error) error {
	path, err := m.Acquire(suffix)
	if err != nil {
		return err
	}
	defer m.Release(path)
	return fn(path)
}

// Release removes and deregisters one resource early. Paths the manager did
// not create are left alone. A file that is already gone only logs a warning.
func (m *Manager) Release(path string) {
	if _, ok := m.resources[path]; !ok {
		m.log.Debug().Str("path", path).Msg("release of unregistered path ignored")
		return
	}
	delete(m.resources, path)
	m.remove(path)
}

// ReleaseAll removes every still-registered resource and returns how many
// were deregistered.
func (m *Manager) ReleaseAll() int {
	paths := m.Paths()
	for _, path := range paths {
		delete(m.resources, path)
		m.remove(path)
	}
	if len(paths) > 0 {
		m.log.Debug().Int("count", len(paths)).Msg("temp files released")
	}
	return len(paths)
}

// Paths returns the registered paths in creation order.
func (m *Manager) Paths() []string {
	res := make([]Resource, 0, len(m.resources))
	for _, r := range m.resources {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].Path < res[j].Path
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	paths := make([]string, len(res))
	for i, r := range res {
		paths[i] = r.Path
	}
	return paths
}

// Len returns the number of registered resources.
func (m *Manager) Len() int { return len(m.resources) }

// Owner returns the id of the owning request.
func (m *Manager) Owner() string { return m.owner }

func (m *Manager) remove(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		m.log.Debug().Str("path", path).Msg("temp file removed")
	case errors.Is(err, os.ErrNotExist):
		m.log.Warn().Str("path", path).Msg("temp file already gone")
	default:
		m.log.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
	}
}
