package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/pipeline"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Stream control frames
const (
	streamNamePrefix = "name:"
	streamEnd        = "END"
	// defaultStreamName is used when the client never declares a file name.
	defaultStreamName = "stream.wav"
)

// StreamHandler handles GET /ws/recognize. The client sends an optional
// "name:<filename>" text frame, the file content as binary frames and a
// final "END" text frame; the server answers with one envelope and closes.
type StreamHandler struct {
	recognizer
}

// NewStreamHandler creates a new stream handler. jobs may be nil.
func NewStreamHandler(proc Processor, jobs Enqueuer, opts Options, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{recognizer{
		proc: proc,
		jobs: jobs,
		opts: opts,
		log:  logging.Component(log, "stream"),
	}}
}

// Upgrade rejects plain HTTP requests on the WebSocket route
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer   bytes.Buffer
		filename = defaultStreamName
		limit    = h.opts.maxBytes()
	)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			h.log.Info().Err(err).Msg("stream closed before END, discarding")
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			if msg == streamEnd {
				break
			}
			if name, ok := strings.CutPrefix(msg, streamNamePrefix); ok {
				filename = strings.TrimSpace(name)
				h.log.Debug().Str("filename", filename).Msg("stream name set")
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if limit > 0 && int64(buffer.Len()+len(message)) > limit {
				h.reply(c, "", errorEnvelope(
					apperr.Validation(fmt.Sprintf("File too large (max %dMB)", h.opts.MaxFileSizeMB))))
				return
			}
			buffer.Write(message)
		}
	}

	h.log.Info().Str("filename", filename).Int("bytes", buffer.Len()).Msg("stream received")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		watchClose(c, cancel)
	}()
	// The connection is pooled once Handle returns; stop the watcher first.
	defer func() {
		c.Close()
		<-watching
	}()

	requestID, _, env := h.recognize(ctx, types.SourceStream, pipeline.Upload{
		Filename: filename,
		Data:     buffer.Bytes(),
	})
	h.reply(c, requestID, env)
}

// watchClose cancels the request once the client goes away. Frames sent
// after END are ignored.
func watchClose(c *websocket.Conn, cancel context.CancelFunc) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			cancel()
			return
		}
	}
}

func (h *StreamHandler) reply(c *websocket.Conn, requestID string, env types.Envelope) {
	if err := c.WriteJSON(env); err != nil {
		h.log.Warn().Err(err).Str(logging.FieldRequestID, requestID).Int("code", env.Code).Msg("failed to send stream response")
	}
}
