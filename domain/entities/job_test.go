package entities

import (
	"errors"
	"testing"
	"time"
)

func sampleTranscript() Transcript {
	return Transcript{
		Text:                "hola",
		Language:            "es",
		LanguageProbability: 0.9,
		Segments:            []Segment{{ID: 0, Start: 0, End: 1, Text: "hola"}},
	}
}

func TestJobCreation(t *testing.T) {
	now := time.Now()
	job := NewJob("job-1", "a.mp3", "", now)

	if job.Status != JobStatusQueued {
		t.Errorf("Expected status %s, got %s", JobStatusQueued, job.Status)
	}

	if job.LanguageRequested != "" {
		t.Errorf("Expected no language hint, got %s", job.LanguageRequested)
	}

	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("Queued job should not have started_at or completed_at")
	}

	if err := job.Validate(); err != nil {
		t.Errorf("New job should be valid, got: %v", err)
	}
}

func TestJobLifecycleCompleted(t *testing.T) {
	created := time.Now()
	job := NewJob("job-1", "a.mp3", "es", created)

	if err := job.Start(created.Add(time.Second)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != JobStatusProcessing {
		t.Errorf("Expected status %s, got %s", JobStatusProcessing, job.Status)
	}

	if err := job.Complete(sampleTranscript(), created.Add(2*time.Second)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("Expected status %s, got %s", JobStatusCompleted, job.Status)
	}
	if job.Result == nil || job.Result.Text != "hola" {
		t.Errorf("Expected stored result, got %+v", job.Result)
	}
	if job.ErrorMessage != "" {
		t.Errorf("Completed job should not carry an error message, got %q", job.ErrorMessage)
	}
	if err := job.Validate(); err != nil {
		t.Errorf("Completed job should be valid, got: %v", err)
	}
}

func TestJobLifecycleError(t *testing.T) {
	job := NewJob("job-1", "a.mp3", "", time.Now())
	if err := job.Start(time.Now()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := job.Fail("decode failed", time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.Status != JobStatusError {
		t.Errorf("Expected status %s, got %s", JobStatusError, job.Status)
	}
	if job.Result != nil {
		t.Error("Errored job should not carry a result")
	}
	if job.ErrorMessage != "decode failed" {
		t.Errorf("Expected error message 'decode failed', got %q", job.ErrorMessage)
	}
	if err := job.Validate(); err != nil {
		t.Errorf("Errored job should be valid, got: %v", err)
	}
}

func TestJobRejectsInvalidTransitions(t *testing.T) {
	job := NewJob("job-1", "a.mp3", "", time.Now())

	if err := job.Complete(sampleTranscript(), time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition completing a queued job, got %v", err)
	}
	if err := job.Fail("boom", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition failing a queued job, got %v", err)
	}

	_ = job.Start(time.Now())
	if err := job.Start(time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition starting twice, got %v", err)
	}

	_ = job.Complete(sampleTranscript(), time.Now())
	if err := job.Fail("late failure", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected terminal state to be final, got %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("Terminal status changed to %s", job.Status)
	}
}

func TestJobTimestampOrdering(t *testing.T) {
	created := time.Now()
	job := NewJob("job-1", "a.mp3", "", created)

	// A clock that goes backwards must not break created <= started <= completed
	if err := job.Start(created.Add(-time.Minute)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.StartedAt.Before(job.CreatedAt) {
		t.Error("started_at should never precede created_at")
	}

	if err := job.Complete(sampleTranscript(), created.Add(-time.Hour)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.CompletedAt.Before(*job.StartedAt) {
		t.Error("completed_at should never precede started_at")
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	job := NewJob("job-1", "a.mp3", "", time.Now())
	_ = job.Start(time.Now())
	_ = job.Complete(sampleTranscript(), time.Now())

	clone := job.Clone()
	clone.Result.Segments[0].Text = "changed"
	*clone.StartedAt = time.Time{}

	if job.Result.Segments[0].Text != "hola" {
		t.Error("Mutating the clone's segments changed the original")
	}
	if job.StartedAt.IsZero() {
		t.Error("Mutating the clone's started_at changed the original")
	}
}

func TestJobState(t *testing.T) {
	job := NewJob("job-1", "a.mp3", "", time.Now())
	if _, ok := job.State().(QueuedState); !ok {
		t.Errorf("Expected QueuedState, got %T", job.State())
	}

	_ = job.Start(time.Now())
	if _, ok := job.State().(ProcessingState); !ok {
		t.Errorf("Expected ProcessingState, got %T", job.State())
	}

	_ = job.Fail("decode failed", time.Now())
	state, ok := job.State().(FailedState)
	if !ok {
		t.Fatalf("Expected FailedState, got %T", job.State())
	}
	if state.Message != "decode failed" {
		t.Errorf("Expected message 'decode failed', got %q", state.Message)
	}
	if state.Status() != JobStatusError {
		t.Errorf("Expected status %s, got %s", JobStatusError, state.Status())
	}
}

func TestParseJobStatus(t *testing.T) {
	for _, raw := range []string{"queued", "processing", "completed", "error"} {
		if _, err := ParseJobStatus(raw); err != nil {
			t.Errorf("ParseJobStatus(%q) failed: %v", raw, err)
		}
	}
	if _, err := ParseJobStatus("cancelled"); err == nil {
		t.Error("Expected error for unknown status")
	}
}
