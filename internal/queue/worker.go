// Package queue records and archives finished requests in the background so
// that slow storage never delays a response.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/storage"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// ErrQueueFull is returned by Enqueue when the buffer is exhausted.
var ErrQueueFull = errors.New("job queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("worker pool stopped")

// History persists request outcomes.
type History interface {
	SaveOutcome(ctx context.Context, o *types.Outcome) error
	SetArchiveURL(ctx context.Context, requestID, url string) error
}

// Options configures a WorkerPool.
type Options struct {
	Workers   int
	QueueSize int
	// ArchiveAttempts is the number of tries per archiver, including the first.
	ArchiveAttempts int
	RetryInterval   time.Duration
	JobTimeout      time.Duration
}

// WorkerPool manages a pool of workers processing finished requests
type WorkerPool struct {
	jobQueue  chan *Job
	opts      Options
	history   History
	archivers []storage.Archiver
	log       zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. history may be nil.
func NewWorkerPool(opts Options, history History, archivers []storage.Archiver, log zerolog.Logger) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.ArchiveAttempts <= 0 {
		opts.ArchiveAttempts = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	return &WorkerPool{
		jobQueue:  make(chan *Job, opts.QueueSize),
		opts:      opts,
		history:   history,
		archivers: archivers,
		log:       logging.Component(log, "queue"),
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("starting worker pool")
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Enqueue adds a job without blocking. A full queue drops the job.
func (wp *WorkerPool) Enqueue(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}

	select {
	case wp.jobQueue <- job:
		wp.log.Debug().Str(logging.FieldRequestID, job.ID).Msg("job enqueued")
		return nil
	default:
		wp.log.Warn().Str(logging.FieldRequestID, job.ID).Msg("job queue full, dropping job")
		return ErrQueueFull
	}
}

// Stop rejects new jobs and waits for queued ones to finish, or for ctx.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobQueue)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str(logging.FieldRequestID, job.ID).
						Str("stack", string(debug.Stack())).
						Msgf("panic processing job: %v", r)
					job.Status = StatusFailed
					job.Error = fmt.Errorf("worker panic: %v", r)
				}
			}()

			wp.processJob(log, job)
		}()
	}
}

// processJob records the outcome and archives successful transcripts
func (wp *WorkerPool) processJob(log zerolog.Logger, job *Job) {
	log = log.With().Str(logging.FieldRequestID, job.ID).Logger()
	job.Status = StatusProcessing

	ctx, cancel := context.WithTimeout(context.Background(), wp.opts.JobTimeout)
	defer cancel()

	o := job.Outcome
	if wp.history != nil {
		if err := wp.history.SaveOutcome(ctx, o); err != nil {
			log.Error().Err(err).Msg("failed to record outcome")
			job.Status = StatusFailed
			job.Error = err
			return
		}
	}

	if o.Status != types.StateDone {
		job.Status = StatusCompleted
		return
	}

	for _, a := range wp.archivers {
		url, err := wp.archive(ctx, log, a, o)
		if err != nil {
			log.Warn().Err(err).Str("archiver", a.Name()).Msg("archive failed, giving up")
			continue
		}
		job.Archived[a.Name()] = url
		if wp.history != nil {
			if err := wp.history.SetArchiveURL(ctx, o.RequestID, url); err != nil {
				log.Error().Err(err).Msg("failed to record archive location")
			}
		}
	}

	job.Status = StatusCompleted
	log.Info().Interface("archived", job.Archived).Msg("job completed")
}

func (wp *WorkerPool) archive(ctx context.Context, log zerolog.Logger, a storage.Archiver, o *types.Outcome) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		url, err := a.Archive(ctx, o)
		if err != nil {
			log.Warn().Err(err).Str("archiver", a.Name()).Int("attempt", attempt).Msg("archive attempt failed")
		}
		return url, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = wp.opts.RetryInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(wp.opts.ArchiveAttempts)),
	)
}
