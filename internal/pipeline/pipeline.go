// Package pipeline runs one recognition request end to end:
//
//	RECEIVED -> (TRANSCODING) -> RECOGNIZING -> SEGMENTING -> RESTORING -> ASSEMBLING -> DONE
//
// Any fatal error moves the request to FAILED. Every temp file the request
// created is removed before Run returns, on every path.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/segment"
	"github.com/codebuildervaibhav/speech-recognition/internal/tempfile"
	"github.com/codebuildervaibhav/speech-recognition/internal/transcription"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Upload is the raw content of one request
type Upload struct {
	Filename string
	Data     []byte
}

// Options tunes the pipeline
type Options struct {
	TempDir string
	// RestoreConcurrency bounds in-flight restorer calls per request.
	RestoreConcurrency int
	// RestoreTimeout bounds one restorer attempt.
	RestoreTimeout time.Duration
	// RestoreAttempts is the number of tries per segment, including the first.
	RestoreAttempts int
	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration
}

// Deps are the long-lived collaborators shared by all requests
type Deps struct {
	Formats    *transcription.Formats
	Transcoder transcription.Transcoder
	Recognizer transcription.Recognizer
	Restorer   transcription.Restorer
	Segmenter  *segment.Segmenter
}

// Result describes a finished request
type Result struct {
	RequestID   string
	Text        string
	State       types.State
	FailedStage types.State
	Segments    int
	Fallbacks   int
	Transcoded  bool
	Duration    time.Duration
}

// Pipeline is safe for concurrent use; all per-request state lives in Run.
type Pipeline struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

// New creates a pipeline
func New(deps Deps, opts Options, log zerolog.Logger) *Pipeline {
	if opts.RestoreConcurrency <= 0 {
		opts.RestoreConcurrency = 1
	}
	if opts.RestoreAttempts <= 0 {
		opts.RestoreAttempts = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	if deps.Segmenter == nil {
		deps.Segmenter = segment.New(segment.Options{ForceCut: true})
	}
	return &Pipeline{deps: deps, opts: opts, log: log}
}

// Validate checks an upload before any resource is allocated. It reports
// whether the upload needs transcoding.
func (p *Pipeline) Validate(up Upload) (bool, error) {
	if strings.TrimSpace(up.Filename) == "" {
		return false, apperr.Validation("No file uploaded")
	}
	needsTranscode, err := p.deps.Formats.Classify(up.Filename)
	if err != nil {
		return false, apperr.Validation(fmt.Sprintf(
			"Invalid file format. Supported formats: %s", strings.Join(p.deps.Formats.Accepted(), ", ")))
	}
	if len(up.Data) == 0 {
		return false, apperr.Validation("Empty file content")
	}
	return needsTranscode, nil
}

// run carries the state of one request
type run struct {
	p      *Pipeline
	log    zerolog.Logger
	tmp    *tempfile.Manager
	result Result
}

func (r *run) enter(state types.State) {
	r.result.State = state
	r.log.Debug().Str("state", string(state)).Msg("pipeline state")
}

// fail moves the request to FAILED. Context errors win over the stage error
// so that cancellation is reported as such.
func (r *run) fail(ctx context.Context, err error) error {
	stage := r.result.State
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = apperr.Cancelled(strings.ToLower(string(stage)), ctxErr)
	}
	r.result.FailedStage = stage
	r.result.State = types.StateFailed
	r.log.Error().Err(err).Str("stage", string(stage)).Msg("request failed")
	return err
}

// Run processes one upload. The returned Result is filled on failure too, with
// State FAILED and FailedStage set.
func (p *Pipeline) Run(ctx context.Context, requestID string, up Upload) (res Result, err error) {
	start := time.Now()
	r := &run{
		p:      p,
		log:    logging.Request(p.log, requestID),
		result: Result{RequestID: requestID, State: types.StateReceived},
	}
	defer func() {
		res.Duration = time.Since(start)
	}()

	needsTranscode, err := p.Validate(up)
	if err != nil {
		r.result.FailedStage = types.StateReceived
		r.result.State = types.StateFailed
		r.log.Info().Err(err).Str("filename", up.Filename).Msg("upload rejected")
		return r.result, err
	}

	r.tmp = tempfile.NewManager(p.opts.TempDir, requestID, r.log)
	defer r.tmp.ReleaseAll()

	text, err := r.execute(ctx, up, needsTranscode)
	if err != nil {
		return r.result, r.fail(ctx, err)
	}

	r.result.Text = text
	r.enter(types.StateDone)
	r.log.Info().
		Int("segments", r.result.Segments).
		Int("fallbacks", r.result.Fallbacks).
		Bool("transcoded", r.result.Transcoded).
		Int("text_length", segment.Length(text)).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")
	return r.result, nil
}

func (r *run) execute(ctx context.Context, up Upload, needsTranscode bool) (string, error) {
	p := r.p

	ext := strings.ToLower(filepath.Ext(up.Filename))
	src, _, err := r.tmp.Store(ext, bytes.NewReader(up.Data))
	if err != nil {
		return "", apperr.Internal("received", "Failed to save upload", err)
	}
	r.log.Info().Str("filename", up.Filename).Int("bytes", len(up.Data)).Msg("upload saved")

	audio := src
	if needsTranscode {
		r.enter(types.StateTranscoding)
		audio, err = r.transcode(ctx, src)
		if err != nil {
			return "", err
		}
		r.result.Transcoded = true
	}

	r.enter(types.StateRecognizing)
	raw, err := p.deps.Recognizer.Recognize(ctx, audio)
	if err != nil {
		return "", apperr.Recognition("Speech recognition failed", err)
	}
	r.tmp.Release(audio)
	r.log.Info().Int("length", segment.Length(raw)).Msg("recognition finished")

	r.enter(types.StateSegmenting)
	segs := p.deps.Segmenter.Split(raw)
	r.result.Segments = len(segs)
	if len(segs) == 0 {
		r.log.Info().Msg("nothing to restore")
		return raw, nil
	}
	for i, s := range segs {
		r.log.Debug().Int("segment", i).Int("length", segment.Length(s)).Msg("segment")
	}

	r.enter(types.StateRestoring)
	restored, fallbacks, err := r.restoreAll(ctx, segs)
	if err != nil {
		return "", err
	}
	r.result.Fallbacks = fallbacks

	r.enter(types.StateAssembling)
	return strings.Join(restored, ""), nil
}

// transcode converts src into a fresh registered .wav and releases src.
func (r *run) transcode(ctx context.Context, src string) (string, error) {
	dst, err := r.tmp.Acquire(".wav")
	if err != nil {
		return "", apperr.Internal("transcoding", "Failed to allocate transcode output", err)
	}
	if err := r.p.deps.Transcoder.Transcode(ctx, src, dst); err != nil {
		return "", apperr.Transcode("Audio conversion failed", err)
	}

	info, err := os.Stat(dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", apperr.Transcode("Audio conversion produced no output", err)
	case err != nil:
		return "", apperr.Transcode("Audio conversion output unreadable", err)
	case info.Size() == 0:
		return "", apperr.Transcode("Audio conversion produced an empty file", nil)
	}

	r.tmp.Release(src)
	r.log.Info().Int64("bytes", info.Size()).Msg("transcoding finished")
	return dst, nil
}
