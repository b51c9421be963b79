package handlers

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/pipeline"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Multipart field names accepted for the audio file, in order of preference.
var uploadFields = []string{"audio", "file"}

// UploadHandler handles POST /recognize
type UploadHandler struct {
	recognizer
}

// NewUploadHandler creates a new upload handler. jobs may be nil.
func NewUploadHandler(proc Processor, jobs Enqueuer, opts Options, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{recognizer{
		proc: proc,
		jobs: jobs,
		opts: opts,
		log:  logging.Component(log, "upload"),
	}}
}

// Handle processes the upload request and answers with the transcript
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	file := h.formFile(c)
	if file == nil {
		return sendError(c, apperr.Validation("No file uploaded"))
	}

	if limit := h.opts.maxBytes(); limit > 0 && file.Size > limit {
		return sendError(c, apperr.Validation(fmt.Sprintf("File too large (max %dMB)", h.opts.MaxFileSizeMB)))
	}

	data, err := readFormFile(file)
	if err != nil {
		return sendError(c, apperr.Internal("received", "Failed to read upload", err))
	}

	// fasthttp does not report client disconnects, so an upload is bounded
	// by the request timeout only.
	requestID, status, env := h.recognize(c.UserContext(), types.SourceUpload, pipeline.Upload{
		Filename: file.Filename,
		Data:     data,
	})
	c.Set("X-Request-ID", requestID)
	return c.Status(status).JSON(env)
}

func (h *UploadHandler) formFile(c *fiber.Ctx) *multipart.FileHeader {
	for _, field := range uploadFields {
		if file, err := c.FormFile(field); err == nil {
			return file
		}
	}
	return nil
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func sendError(c *fiber.Ctx, err error) error {
	return c.Status(apperr.StatusOf(err)).JSON(errorEnvelope(err))
}
