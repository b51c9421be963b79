// Package apperr defines the error taxonomy of the recognition pipeline.
// Every error carries the stage that produced it and the HTTP status the
// response envelope should use.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by its effect on the request.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindTranscode   Kind = "transcode"
	KindRecognition Kind = "recognition"
	KindRestoration Kind = "restoration"
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal"
)

// StatusClientClosed is the de facto status for a request the client abandoned.
const StatusClientClosed = 499

// Error is the unified pipeline error type.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Status  int
	Cause   error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Fatal reports whether the error aborts the whole request. Restoration
// errors are absorbed per segment.
func (e *Error) Fatal() bool { return e.Kind != KindRestoration }

// Validation rejects an upload before any resource is allocated.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Stage: "received", Message: message, Status: http.StatusBadRequest}
}

// Transcode wraps a conversion failure.
func Transcode(message string, cause error) *Error {
	return &Error{Kind: KindTranscode, Stage: "transcoding", Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// Recognition wraps a recognizer failure.
func Recognition(message string, cause error) *Error {
	return &Error{Kind: KindRecognition, Stage: "recognizing", Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// Restoration wraps a per-segment punctuation failure.
func Restoration(message string, cause error) *Error {
	return &Error{Kind: KindRestoration, Stage: "restoring", Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// Internal wraps any other fatal failure at the given stage.
func Internal(stage, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Stage: stage, Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// Cancelled wraps a context error observed at the given stage.
func Cancelled(stage string, cause error) *Error {
	status := StatusClientClosed
	msg := "request cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		msg = "request timed out"
	}
	return &Error{Kind: KindCancelled, Stage: stage, Message: msg, Status: status, Cause: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf maps any error to an HTTP status code.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return StatusClientClosed
	}
	return http.StatusInternalServerError
}

// KindOf returns the error kind, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
