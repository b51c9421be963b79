package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/storage"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []string
	urls  map[string]string
}

func (h *fakeHistory) SaveOutcome(ctx context.Context, o *types.Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, o.RequestID)
	return nil
}

func (h *fakeHistory) SetArchiveURL(ctx context.Context, requestID, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.urls == nil {
		h.urls = map[string]string{}
	}
	h.urls[requestID] = url
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	failures int
	panicOn  string
	calls    int
}

func (a *fakeArchiver) Name() string { return "fake" }

func (a *fakeArchiver) Archive(ctx context.Context, o *types.Outcome) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if o.RequestID == a.panicOn {
		panic("archiver exploded")
	}
	if a.calls <= a.failures {
		return "", errors.New("storage unavailable")
	}
	return "archive://" + o.RequestID, nil
}

func testOptions() Options {
	return Options{Workers: 2, QueueSize: 10, ArchiveAttempts: 3, RetryInterval: time.Millisecond}
}

func outcome(id string, status types.State) *types.Outcome {
	return &types.Outcome{RequestID: id, Filename: id + ".wav", Status: status, Text: "你好。"}
}

func TestWorkerPoolRecordsAndArchives(t *testing.T) {
	history := &fakeHistory{}
	archiver := &fakeArchiver{}
	wp := NewWorkerPool(testOptions(), history, []storage.Archiver{archiver}, zerolog.Nop())
	wp.Start()

	jobs := []*Job{
		NewJob(outcome("req-ok", types.StateDone)),
		NewJob(outcome("req-failed", types.StateFailed)),
	}
	for _, j := range jobs {
		if err := wp.Enqueue(j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := wp.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(history.saved) != 2 {
		t.Fatalf("expected both outcomes recorded, got %v", history.saved)
	}
	if archiver.calls != 1 {
		t.Fatalf("only successful requests are archived, got %d calls", archiver.calls)
	}
	if history.urls["req-ok"] != "archive://req-ok" {
		t.Fatalf("archive url not recorded: %v", history.urls)
	}
	for _, j := range jobs {
		if j.Status != StatusCompleted {
			t.Fatalf("job %s ended %s", j.ID, j.Status)
		}
	}
}

func TestWorkerPoolRetriesArchive(t *testing.T) {
	archiver := &fakeArchiver{failures: 2}
	wp := NewWorkerPool(testOptions(), nil, []storage.Archiver{archiver}, zerolog.Nop())
	wp.Start()

	job := NewJob(outcome("req", types.StateDone))
	if err := wp.Enqueue(job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	wp.Stop(context.Background())

	if archiver.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", archiver.calls)
	}
	if job.Archived["fake"] != "archive://req" {
		t.Fatalf("expected archive after retries, got %v", job.Archived)
	}
}

func TestWorkerPoolGivesUpAfterMaxAttempts(t *testing.T) {
	archiver := &fakeArchiver{failures: 100}
	wp := NewWorkerPool(testOptions(), nil, []storage.Archiver{archiver}, zerolog.Nop())
	wp.Start()

	job := NewJob(outcome("req", types.StateDone))
	wp.Enqueue(job)
	wp.Stop(context.Background())

	if archiver.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", archiver.calls)
	}
	if len(job.Archived) != 0 || job.Status != StatusCompleted {
		t.Fatalf("archive failure must not fail the job: %+v", job)
	}
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	archiver := &fakeArchiver{panicOn: "req-bad"}
	opts := testOptions()
	opts.Workers = 1
	wp := NewWorkerPool(opts, nil, []storage.Archiver{archiver}, zerolog.Nop())
	wp.Start()

	bad := NewJob(outcome("req-bad", types.StateDone))
	good := NewJob(outcome("req-good", types.StateDone))
	wp.Enqueue(bad)
	wp.Enqueue(good)
	wp.Stop(context.Background())

	if bad.Status != StatusFailed || bad.Error == nil {
		t.Fatalf("expected panicking job to fail, got %+v", bad)
	}
	if good.Status != StatusCompleted {
		t.Fatalf("worker must survive a panic, got %+v", good)
	}
}

func TestWorkerPoolEnqueueNeverBlocks(t *testing.T) {
	opts := testOptions()
	opts.QueueSize = 2
	wp := NewWorkerPool(opts, nil, nil, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if err := wp.Enqueue(NewJob(outcome(fmt.Sprint(i), types.StateDone))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := wp.Enqueue(NewJob(outcome("overflow", types.StateDone))); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	wp.Start()
	if err := wp.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := wp.Enqueue(NewJob(outcome("late", types.StateDone))); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	// Stop is idempotent.
	if err := wp.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
