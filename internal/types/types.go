package types

import "time"

// State is a step of the per-request pipeline
type State string

// Pipeline states
const (
	StateReceived    State = "RECEIVED"
	StateTranscoding State = "TRANSCODING"
	StateRecognizing State = "RECOGNIZING"
	StateSegmenting  State = "SEGMENTING"
	StateRestoring   State = "RESTORING"
	StateAssembling  State = "ASSEMBLING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceStream = "stream"
)

// Envelope is the uniform response body for every outcome
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// TextData is the success payload
type TextData struct {
	Text string `json:"text"`
}

// Outcome records how one request ended. It is persisted after the response
// has been produced.
type Outcome struct {
	RequestID   string
	Filename    string
	SourceType  string
	Status      State
	FailedStage string
	Error       string
	Text        string
	Segments    int
	Fallbacks   int
	Transcoded  bool
	Duration    time.Duration
	ProcessedAt time.Time
}
