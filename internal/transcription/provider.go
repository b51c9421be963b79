package transcription

import "context"

// Recognizer converts an audio file to raw, unpunctuated text.
// Implementations are long-lived and safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
	Name() string
}

// Restorer returns text with punctuation inserted. It may fail per call.
// Implementations are long-lived and safe for concurrent use.
type Restorer interface {
	Restore(ctx context.Context, text string) (string, error)
	Name() string
}
