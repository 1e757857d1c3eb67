package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

// jobEntry serializes writers of a single job without holding the registry lock
type jobEntry struct {
	mu  sync.Mutex
	job entities.Job
}

// MemoryJobRepository is the in-process job registry.
// The map lock guards membership only; each record has its own lock, so updates
// to different jobs do not wait for each other.
type MemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*jobEntry // id -> entry
	order []string             // insertion order, used by List
	now   func() time.Time
}

var _ repositories.JobRepository = (*MemoryJobRepository)(nil)

// NewMemoryJobRepository creates an empty job registry
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]*jobEntry),
		now:  time.Now,
	}
}

// Create implements JobRepository interface
func (m *MemoryJobRepository) Create(ctx context.Context, filename, languageRequested string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	for {
		if _, exists := m.jobs[id]; !exists {
			break
		}
		id = uuid.New().String()
	}

	m.jobs[id] = &jobEntry{job: entities.NewJob(id, filename, languageRequested, m.now())}
	m.order = append(m.order, id)
	return id, nil
}

// Get implements JobRepository interface
func (m *MemoryJobRepository) Get(ctx context.Context, id string) (entities.Job, error) {
	entry, err := m.entry(id)
	if err != nil {
		return entities.Job{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), nil
}

// Update implements JobRepository interface
func (m *MemoryJobRepository) Update(ctx context.Context, id string, mutate func(*entities.Job) error) (entities.Job, error) {
	if mutate == nil {
		return entities.Job{}, errors.New("mutation cannot be nil")
	}

	entry, err := m.entry(id)
	if err != nil {
		return entities.Job{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Work on a copy so a failed mutation never leaves a torn record behind
	working := entry.job.Clone()
	if err := mutate(&working); err != nil {
		return entry.job.Clone(), err
	}
	if working.ID != entry.job.ID {
		return entry.job.Clone(), errors.New("job id is immutable")
	}
	if err := working.Validate(); err != nil {
		return entry.job.Clone(), err
	}

	entry.job = working
	return working.Clone(), nil
}

// List implements JobRepository interface
func (m *MemoryJobRepository) List(ctx context.Context) ([]entities.Job, error) {
	m.mu.RLock()
	entries := make([]*jobEntry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.jobs[id])
	}
	m.mu.RUnlock()

	result := make([]entities.Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		result = append(result, entry.job.Clone())
		entry.mu.Unlock()
	}
	return result, nil
}

// EvictTerminatedBefore implements JobRepository interface
func (m *MemoryJobRepository) EvictTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		entry := m.jobs[id]

		entry.mu.Lock()
		expired := entry.job.Status.IsTerminal() &&
			entry.job.CompletedAt != nil &&
			entry.job.CompletedAt.Before(cutoff)
		entry.mu.Unlock()

		if expired {
			delete(m.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed, nil
}

// Len returns the number of jobs currently held
func (m *MemoryJobRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *MemoryJobRepository) entry(id string) (*jobEntry, error) {
	if id == "" {
		return nil, repositories.ErrJobNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.jobs[id]
	if !exists {
		return nil, repositories.ErrJobNotFound
	}
	return entry, nil
}
