package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

func TestMemoryJobRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	id, err := repo.Create(ctx, "a.mp3", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Job should be visible right after creation, got: %v", err)
	}
	if job.Status != entities.JobStatusQueued {
		t.Errorf("Expected status %s, got %s", entities.JobStatusQueued, job.Status)
	}
	if job.Filename != "a.mp3" {
		t.Errorf("Expected filename a.mp3, got %s", job.Filename)
	}
	if job.LanguageRequested != "" {
		t.Errorf("Expected empty language hint, got %s", job.LanguageRequested)
	}
}

func TestMemoryJobRepository_NotFound(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	_, _ = repo.Create(ctx, "a.mp3", "")

	for _, id := range []string{"", "unknown", "00000000-0000-0000-0000-000000000000"} {
		if _, err := repo.Get(ctx, id); !errors.Is(err, repositories.ErrJobNotFound) {
			t.Errorf("Get(%q): expected ErrJobNotFound, got %v", id, err)
		}
		_, err := repo.Update(ctx, id, func(j *entities.Job) error { return nil })
		if !errors.Is(err, repositories.ErrJobNotFound) {
			t.Errorf("Update(%q): expected ErrJobNotFound, got %v", id, err)
		}
	}
}

func TestMemoryJobRepository_UniqueIDs(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	const workers, perWorker = 8, 250
	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := repo.Create(ctx, "a.wav", "")
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate job id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("Expected %d ids, got %d", workers*perWorker, len(seen))
	}
}

func TestMemoryJobRepository_FailedMutationLeavesRecordIntact(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	id, _ := repo.Create(ctx, "a.mp3", "")

	_, err := repo.Update(ctx, id, func(j *entities.Job) error {
		j.Filename = "torn.mp3"
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("Expected mutation error to be returned")
	}

	// Mutations that break invariants are rejected too
	_, err = repo.Update(ctx, id, func(j *entities.Job) error {
		j.Status = entities.JobStatusCompleted
		return nil
	})
	if err == nil {
		t.Fatal("Expected invariant violation to be rejected")
	}

	job, _ := repo.Get(ctx, id)
	if job.Filename != "a.mp3" || job.Status != entities.JobStatusQueued {
		t.Errorf("Record changed after rejected updates: %+v", job)
	}
}

func TestMemoryJobRepository_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	id, _ := repo.Create(ctx, "a.mp3", "")

	_, err := repo.Update(ctx, id, func(j *entities.Job) error {
		if err := j.Start(time.Now()); err != nil {
			return err
		}
		return j.Complete(entities.Transcript{Text: "hola", Segments: []entities.Segment{{Text: "hola", End: 1}}}, time.Now())
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	job, _ := repo.Get(ctx, id)
	job.Result.Segments[0].Text = "mutated"
	job.Status = entities.JobStatusQueued

	again, _ := repo.Get(ctx, id)
	if again.Result.Segments[0].Text != "hola" || again.Status != entities.JobStatusCompleted {
		t.Errorf("Mutating a snapshot changed the stored record: %+v", again)
	}
}

func TestMemoryJobRepository_ListWhileCreating(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_, _ = repo.Create(ctx, fmt.Sprintf("f%d.mp3", i), "")
		}
	}()

	for {
		jobs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, job := range jobs {
			if job.ID == "" {
				t.Fatal("List returned an empty record")
			}
		}
		select {
		case <-done:
			jobs, _ := repo.List(ctx)
			if len(jobs) != 500 {
				t.Errorf("Expected 500 jobs, got %d", len(jobs))
			}
			if jobs[0].Filename != "f0.mp3" || jobs[499].Filename != "f499.mp3" {
				t.Error("List should return jobs in insertion order")
			}
			return
		default:
		}
	}
}

func TestMemoryJobRepository_ConcurrentUpdatesSameJob(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()
	id, _ := repo.Create(ctx, "a.mp3", "")

	// Only one of many concurrent starters may win the queued -> processing edge
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, id, func(j *entities.Job) error {
				return j.Start(time.Now())
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful start, got %d", wins)
	}
}

func TestMemoryJobRepository_EvictTerminatedBefore(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	repo.now = func() time.Time { return old }
	doneID, _ := repo.Create(ctx, "done.mp3", "")
	runningID, _ := repo.Create(ctx, "running.mp3", "")
	repo.now = time.Now
	freshID, _ := repo.Create(ctx, "fresh.mp3", "")

	_, _ = repo.Update(ctx, doneID, func(j *entities.Job) error {
		_ = j.Start(old)
		return j.Fail("decode failed", old)
	})
	_, _ = repo.Update(ctx, runningID, func(j *entities.Job) error {
		return j.Start(old)
	})

	removed, err := repo.EvictTerminatedBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 evicted job, got %d", removed)
	}
	if _, err := repo.Get(ctx, doneID); !errors.Is(err, repositories.ErrJobNotFound) {
		t.Errorf("Evicted job should be gone, got %v", err)
	}
	for _, id := range []string{runningID, freshID} {
		if _, err := repo.Get(ctx, id); err != nil {
			t.Errorf("Job %s should survive eviction, got %v", id, err)
		}
	}
	if repo.Len() != 2 {
		t.Errorf("Expected 2 remaining jobs, got %d", repo.Len())
	}
}
