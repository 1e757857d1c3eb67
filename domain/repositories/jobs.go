package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/transcriber/domain/entities"
)

// ErrJobNotFound is returned for identifiers the registry never issued or already evicted
var ErrJobNotFound = errors.New("job not found")

// JobRepository is the job registry. Every read returns a copy; no caller ever
// holds a reference into the stored record.
type JobRepository interface {
	// Create inserts a queued job and returns its new identifier
	Create(ctx context.Context, filename, languageRequested string) (string, error)
	// Get returns a snapshot of the job or ErrJobNotFound
	Get(ctx context.Context, id string) (entities.Job, error)
	// Update applies mutate atomically to the job. If mutate returns an error the
	// stored record is left untouched.
	Update(ctx context.Context, id string, mutate func(*entities.Job) error) (entities.Job, error)
	// List returns a snapshot of every job in insertion order
	List(ctx context.Context) ([]entities.Job, error)
	// EvictTerminatedBefore removes terminal jobs completed before cutoff and returns how many were removed
	EvictTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// JobArchive keeps a history of jobs that reached a terminal state
type JobArchive interface {
	Store(ctx context.Context, job entities.Job) error
	Recent(ctx context.Context, limit int) ([]entities.Job, error)
	Close(ctx context.Context) error
}
