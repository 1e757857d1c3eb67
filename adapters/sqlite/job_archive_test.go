package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/transcriber/domain/entities"
)

func completedJob(t *testing.T, id string, at time.Time) entities.Job {
	t.Helper()
	job := entities.NewJob(id, id+".wav", "es", at)
	if err := job.Start(at); err != nil {
		t.Fatal(err)
	}
	result := entities.Transcript{
		Language:            "es",
		LanguageProbability: 1,
		Segments:            []entities.Segment{{Start: 0, End: 1.5, Text: "hola"}},
	}.Normalize()
	if err := job.Complete(result, at.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestJobArchive_StoreAndRecent(t *testing.T) {
	ctx := context.Background()
	archive, err := Open(filepath.Join(t.TempDir(), "nested", "jobs.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer archive.Close(ctx)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := archive.Store(ctx, completedJob(t, id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Failed to store job %s: %v", id, err)
		}
	}

	recent, err := archive.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to read recent jobs: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(recent))
	}
	if recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("Expected c, b; got %s, %s", recent[0].ID, recent[1].ID)
	}

	got := recent[0]
	if got.Status != entities.JobStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Text != "hola" || got.Result.Language != "es" {
		t.Errorf("Unexpected result %+v", got.Result)
	}
	if !got.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Expected created_at %v, got %v", base.Add(2*time.Minute), got.CreatedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(base.Add(2*time.Minute+time.Second)) {
		t.Errorf("Unexpected completed_at %v", got.CompletedAt)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Expected archived job to be valid, got %v", err)
	}
}

func TestJobArchive_Upsert(t *testing.T) {
	ctx := context.Background()
	archive, err := Open(filepath.Join(t.TempDir(), "jobs.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer archive.Close(ctx)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := entities.NewJob("x", "x.mp3", "", now)
	_ = job.Start(now)
	_ = job.Fail("decode failed", now)

	if err := archive.Store(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := archive.Store(ctx, job); err != nil {
		t.Fatalf("Expected second store to upsert, got %v", err)
	}

	recent, err := archive.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(recent))
	}
	if recent[0].ErrorMessage != "decode failed" || recent[0].Result != nil {
		t.Errorf("Unexpected archived job %+v", recent[0])
	}
}
