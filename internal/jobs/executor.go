// Package jobs runs asynchronous transcription jobs off the request path and
// expires old ones.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
	"github.com/satriahrh/transcriber/usecase"
)

// ErrShuttingDown is returned by Submit once Shutdown has been called
var ErrShuttingDown = errors.New("executor is shutting down")

const archiveTimeout = 10 * time.Second

// Transcriber produces a transcript from a staged upload
type Transcriber interface {
	Transcribe(ctx context.Context, upload usecase.Upload, audio []byte) (entities.Transcript, error)
}

// PayloadStore gives the executor access to staged audio
type PayloadStore interface {
	Read(path string) ([]byte, error)
	Remove(path string) error
}

// Task is one job handed to the executor
type Task struct {
	JobID       string
	Upload      usecase.Upload
	PayloadPath string
}

// Executor runs each submitted job in its own goroutine. At most
// maxConcurrent transcriptions run at once; the rest wait in queued.
type Executor struct {
	repo        repositories.JobRepository
	transcriber Transcriber
	payloads    PayloadStore
	archive     repositories.JobArchive
	logger      *zap.Logger
	now         func() time.Time

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewExecutor creates an executor. archive may be nil.
func NewExecutor(
	repo repositories.JobRepository,
	transcriber Transcriber,
	payloads PayloadStore,
	archive repositories.JobArchive,
	maxConcurrent int,
	logger *zap.Logger,
) *Executor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		repo:        repo,
		transcriber: transcriber,
		payloads:    payloads,
		archive:     archive,
		logger:      logger,
		now:         time.Now,
		slots:       make(chan struct{}, maxConcurrent),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit schedules task and returns immediately. Completion is observed only
// through the job registry.
func (e *Executor) Submit(task Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrShuttingDown
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(task)
	return nil
}

// Shutdown stops accepting tasks and waits for running ones until ctx is done,
// after which their contexts are cancelled.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.logger.Info("Job executor drained")
		return nil
	case <-ctx.Done():
		e.cancel()
		e.logger.Warn("Job executor shutdown grace expired, cancelling running jobs")
		return ctx.Err()
	}
}

func (e *Executor) run(task Task) {
	defer e.wg.Done()
	defer e.removePayload(task)

	logger := e.logger.With(zap.String("job_id", task.JobID), zap.String("filename", task.Upload.Filename))

	select {
	case e.slots <- struct{}{}:
	case <-e.ctx.Done():
		logger.Warn("Job dropped before start, executor stopped")
		return
	}
	defer func() { <-e.slots }()

	if _, err := e.repo.Update(e.ctx, task.JobID, func(job *entities.Job) error {
		return job.Start(e.now())
	}); err != nil {
		logger.Error("Failed to start job", zap.Error(err))
		return
	}
	logger.Info("Job processing", zap.String("status", string(entities.JobStatusProcessing)))

	result, execErr := e.execute(task)

	var final entities.Job
	var err error
	if execErr != nil {
		final, err = e.repo.Update(context.Background(), task.JobID, func(job *entities.Job) error {
			return job.Fail(execErr.Error(), e.now())
		})
	} else {
		final, err = e.repo.Update(context.Background(), task.JobID, func(job *entities.Job) error {
			return job.Complete(result, e.now())
		})
	}
	if err != nil {
		logger.Error("Failed to record job outcome", zap.Error(err))
		return
	}

	if final.Status == entities.JobStatusError {
		logger.Warn("Job failed", zap.String("status", string(final.Status)), zap.String("error", final.ErrorMessage))
	} else {
		logger.Info("Job completed",
			zap.String("status", string(final.Status)),
			zap.String("language", final.Result.Language),
			zap.Int("segments", len(final.Result.Segments)))
	}
	e.archiveJob(final)
}

// execute converts every failure, panics included, into an error
func (e *Executor) execute(task Task) (result entities.Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered panic in job",
				zap.String("job_id", task.JobID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	audio, err := e.payloads.Read(task.PayloadPath)
	if err != nil {
		return entities.Transcript{}, fmt.Errorf("failed to read staged audio: %w", err)
	}
	return e.transcriber.Transcribe(e.ctx, task.Upload, audio)
}

func (e *Executor) removePayload(task Task) {
	if err := e.payloads.Remove(task.PayloadPath); err != nil {
		e.logger.Warn("Failed to remove staged audio",
			zap.String("job_id", task.JobID),
			zap.String("path", task.PayloadPath),
			zap.Error(err))
	}
}

func (e *Executor) archiveJob(job entities.Job) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := e.archive.Store(ctx, job); err != nil {
		e.logger.Error("Failed to archive job", zap.String("job_id", job.ID), zap.Error(err))
	}
}
