package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/repositories"
)

// Janitor evicts terminal jobs once they are older than the retention period
type Janitor struct {
	repo      repositories.JobRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a janitor. A retention of zero or less disables eviction.
func NewJanitor(repo repositories.JobRepository, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the background eviction loop
func (j *Janitor) Start() {
	if j.retention <= 0 {
		close(j.done)
		j.logger.Info("Job retention disabled, janitor not started")
		return
	}
	go j.loop()
	j.logger.Info("Job janitor started",
		zap.Duration("retention", j.retention),
		zap.Duration("interval", j.interval))
}

// Stop halts the loop and waits for an in-progress sweep
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	<-j.done
	j.logger.Info("Job janitor stopped")
}

func (j *Janitor) loop() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Sweep(context.Background())
		}
	}
}

// Sweep runs one eviction pass and returns how many jobs were removed
func (j *Janitor) Sweep(ctx context.Context) int {
	if j.retention <= 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	removed, err := j.repo.EvictTerminatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("Failed to evict expired jobs", zap.Error(err))
		return 0
	}
	if removed > 0 {
		j.logger.Info("Evicted expired jobs", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed
}
