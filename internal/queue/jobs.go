package queue

import (
	"time"

	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// Job statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job carries one finished request to the background workers, which record
// it and archive its transcript. Jobs never affect the response already sent.
type Job struct {
	ID        string
	Outcome   *types.Outcome
	Status    string
	Error     error
	Archived  map[string]string
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(o *types.Outcome) *Job {
	return &Job{
		ID:        o.RequestID,
		Outcome:   o,
		Status:    StatusQueued,
		Archived:  map[string]string{},
		CreatedAt: time.Now(),
	}
}
