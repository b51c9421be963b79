package transcription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat is returned for uploads whose suffix is not whitelisted
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Transcoder converts a media file the recognizer cannot read into one it can
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// FFmpegTranscoder converts any container to 16-bit mono PCM WAV
type FFmpegTranscoder struct {
	binary     string
	sampleRate int
}

// NewFFmpegTranscoder creates a transcoder. binary defaults to "ffmpeg",
// sampleRate to 16000.
func NewFFmpegTranscoder(binary string, sampleRate int) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &FFmpegTranscoder{binary: binary, sampleRate: sampleRate}
}

// Transcode writes the audio track of src to dst, overwriting dst
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	// ffmpeg -y -i src -vn -ar 16000 -ac 1 -c:a pcm_s16le -f wav dst
	_, err := runCommand(ctx, t.binary,
		"-y",
		"-i", src,
		"-vn",
		"-ar", strconv.Itoa(t.sampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// Formats is the upload suffix whitelist
type Formats struct {
	native    map[string]bool
	transcode map[string]bool
}

// NewFormats builds a whitelist. Suffixes are matched case-insensitively.
func NewFormats(native, transcode []string) *Formats {
	f := &Formats{native: map[string]bool{}, transcode: map[string]bool{}}
	for _, s := range native {
		f.native[normalizeExt(s)] = true
	}
	for _, s := range transcode {
		f.transcode[normalizeExt(s)] = true
	}
	return f
}

// Classify reports whether filename needs transcoding, or ErrUnsupportedFormat
func (f *Formats) Classify(filename string) (needsTranscode bool, err error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == "":
	case f.native[ext]:
		return false, nil
	case f.transcode[ext]:
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// Accepted lists every accepted suffix, native first
func (f *Formats) Accepted() []string {
	out := make([]string, 0, len(f.native)+len(f.transcode))
	for _, m := range []map[string]bool{f.native, f.transcode} {
		exts := make([]string, 0, len(m))
		for ext := range m {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		out = append(out, exts...)
	}
	return out
}

func normalizeExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return s
}
