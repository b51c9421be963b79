package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Archiver stores a finished transcript somewhere durable and returns its
// location.
type Archiver interface {
	Name() string
	Archive(ctx context.Context, o *types.Outcome) (string, error)
}

// LocalStorage archives transcripts to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local archiver rooted at outputDir
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

func (ls *LocalStorage) Name() string { return "local" }

// Archive writes the transcript and its metadata under a dated directory:
// outputs/2025/01/23/20250123_143022_<request>_<filename>.txt
func (ls *LocalStorage) Archive(ctx context.Context, o *types.Outcome) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := ls.now()
	dateDir := filepath.Join(append([]string{ls.outputDir}, datePath(now)...)...)
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	base := baseName(now, o)
	txtPath := filepath.Join(dateDir, base+".txt")
	metaPath := filepath.Join(dateDir, base+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(o.Text), 0o644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}

	meta := metadata(o)
	meta["local_path"] = txtPath
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0o644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return txtPath, nil
}

func datePath(t time.Time) []string {
	return []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	}
}

func baseName(t time.Time, o *types.Outcome) string {
	id := o.RequestID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s", t.Format("20060102_150405"), id, sanitizeFilename(o.Filename))
}

func metadata(o *types.Outcome) map[string]interface{} {
	return map[string]interface{}{
		"request_id":   o.RequestID,
		"filename":     o.Filename,
		"source_type":  o.SourceType,
		"segments":     o.Segments,
		"fallbacks":    o.Fallbacks,
		"transcoded":   o.Transcoded,
		"text_length":  utf8.RuneCountInString(o.Text),
		"duration_ms":  o.Duration.Milliseconds(),
		"processed_at": o.ProcessedAt,
	}
}

// sanitizeFilename strips directories and the extension from name, replaces
// characters that are invalid on common filesystems and bounds the length.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	if utf8.RuneCountInString(name) > 100 {
		name = string([]rune(name)[:100])
	}
	return name
}
