// Package handlers adapts HTTP and WebSocket requests to the recognition
// pipeline and renders the uniform response envelope.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/pipeline"
	"github.com/codebuildervaibhav/speech-recognition/internal/queue"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Processor runs one recognition request
type Processor interface {
	Run(ctx context.Context, requestID string, up pipeline.Upload) (pipeline.Result, error)
}

// Enqueuer accepts finished requests for background recording
type Enqueuer interface {
	Enqueue(job *queue.Job) error
}

// Options shared by the recognition handlers
type Options struct {
	MaxFileSizeMB int
	// Timeout bounds one request end to end. Zero means no limit.
	Timeout     time.Duration
	SuccessCode int
}

func (o Options) maxBytes() int64 {
	return int64(o.MaxFileSizeMB) * 1024 * 1024
}

// recognizer is the transport-independent part of /recognize and /ws/recognize
type recognizer struct {
	proc Processor
	jobs Enqueuer
	opts Options
	log  zerolog.Logger
}

// recognize runs the pipeline and returns the HTTP status and envelope to send.
func (r *recognizer) recognize(parent context.Context, source string, up pipeline.Upload) (string, int, types.Envelope) {
	requestID := uuid.New().String()

	ctx := parent
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.opts.Timeout)
		defer cancel()
	}

	res, err := r.proc.Run(ctx, requestID, up)
	r.record(source, up.Filename, res, err)

	if err != nil {
		return requestID, apperr.StatusOf(err), errorEnvelope(err)
	}
	return requestID, http.StatusOK, successEnvelope(r.opts.SuccessCode, "Success", types.TextData{Text: res.Text})
}

func successEnvelope(code int, message string, data interface{}) types.Envelope {
	return types.Envelope{Code: code, Message: message, Data: data}
}

// record hands the outcome to the worker pool. A nil pool or a full queue
// only loses the history entry.
func (r *recognizer) record(source, filename string, res pipeline.Result, err error) {
	if r.jobs == nil {
		return
	}
	o := &types.Outcome{
		RequestID:   res.RequestID,
		Filename:    filename,
		SourceType:  source,
		Status:      res.State,
		Text:        res.Text,
		Segments:    res.Segments,
		Fallbacks:   res.Fallbacks,
		Transcoded:  res.Transcoded,
		Duration:    res.Duration,
		ProcessedAt: time.Now(),
	}
	if err != nil {
		o.FailedStage = strings.ToLower(string(res.FailedStage))
		o.Error = err.Error()
	}
	if qErr := r.jobs.Enqueue(queue.NewJob(o)); qErr != nil {
		r.log.Warn().Err(qErr).Str(logging.FieldRequestID, o.RequestID).Msg("outcome not recorded")
	}
}

func errorEnvelope(err error) types.Envelope {
	return types.Envelope{Code: apperr.StatusOf(err), Message: errorMessage(err), Data: nil}
}

// errorMessage renders the human-readable cause of a failed request
func errorMessage(err error) string {
	e, ok := apperr.As(err)
	if !ok {
		return "Speech recognition failed: " + err.Error()
	}
	switch e.Kind {
	case apperr.KindValidation, apperr.KindCancelled:
		return e.Message
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}
