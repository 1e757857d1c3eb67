package entities

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of an asynchronous transcription job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// ErrInvalidTransition is returned when a job is moved along an edge the state machine does not have
var ErrInvalidTransition = errors.New("invalid job transition")

// IsTerminal reports whether no further transition can leave this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Valid reports whether s is one of the known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusError:
		return true
	default:
		return false
	}
}

// ParseJobStatus converts a raw query value into a JobStatus
func ParseJobStatus(raw string) (JobStatus, error) {
	status := JobStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status %q", raw)
	}
	return status, nil
}

// Job is the registry record of one asynchronous transcription request.
//
// Result is set only in JobStatusCompleted and ErrorMessage only in JobStatusError.
type Job struct {
	ID                string      `json:"job_id" bson:"_id"`
	Status            JobStatus   `json:"status" bson:"status"`
	Filename          string      `json:"filename" bson:"filename"`
	LanguageRequested string      `json:"language_requested,omitempty" bson:"language_requested,omitempty"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	StartedAt         *time.Time  `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Result            *Transcript `json:"result,omitempty" bson:"result,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// NewJob creates a queued job
func NewJob(id, filename, languageRequested string, now time.Time) Job {
	return Job{
		ID:                id,
		Status:            JobStatusQueued,
		Filename:          filename,
		LanguageRequested: languageRequested,
		CreatedAt:         now,
	}
}

// Start moves a queued job to processing and records started_at
func (j *Job) Start(now time.Time) error {
	if j.Status != JobStatusQueued {
		return transitionError(j.Status, JobStatusProcessing)
	}
	started := notBefore(now, j.CreatedAt)
	j.Status = JobStatusProcessing
	j.StartedAt = &started
	return nil
}

// Complete moves a processing job to completed and stores the transcript
func (j *Job) Complete(result Transcript, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return transitionError(j.Status, JobStatusCompleted)
	}
	completed := notBefore(now, *j.StartedAt)
	stored := result.Clone()
	j.Status = JobStatusCompleted
	j.CompletedAt = &completed
	j.Result = &stored
	j.ErrorMessage = ""
	return nil
}

// Fail moves a processing job to error and stores the failure message
func (j *Job) Fail(message string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return transitionError(j.Status, JobStatusError)
	}
	if message == "" {
		message = "transcription failed"
	}
	completed := notBefore(now, *j.StartedAt)
	j.Status = JobStatusError
	j.CompletedAt = &completed
	j.Result = nil
	j.ErrorMessage = message
	return nil
}

// Clone returns a deep copy of the job
func (j Job) Clone() Job {
	out := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Result != nil {
		r := j.Result.Clone()
		out.Result = &r
	}
	return out
}

// Validate checks the record invariants
func (j Job) Validate() error {
	if j.ID == "" {
		return errors.New("job id is required")
	}
	if !j.Status.Valid() {
		return errors.New("invalid job status")
	}
	if j.StartedAt != nil && j.StartedAt.Before(j.CreatedAt) {
		return errors.New("started_at precedes created_at")
	}
	if j.CompletedAt != nil && (j.StartedAt == nil || j.CompletedAt.Before(*j.StartedAt)) {
		return errors.New("completed_at precedes started_at")
	}

	switch j.Status {
	case JobStatusQueued:
		if j.StartedAt != nil || j.CompletedAt != nil || j.Result != nil || j.ErrorMessage != "" {
			return errors.New("queued job carries processing fields")
		}
	case JobStatusProcessing:
		if j.StartedAt == nil || j.CompletedAt != nil || j.Result != nil || j.ErrorMessage != "" {
			return errors.New("processing job has inconsistent fields")
		}
	case JobStatusCompleted:
		if j.Result == nil || j.ErrorMessage != "" || j.CompletedAt == nil {
			return errors.New("completed job must carry only a result")
		}
	case JobStatusError:
		if j.Result != nil || j.ErrorMessage == "" || j.CompletedAt == nil {
			return errors.New("errored job must carry only an error message")
		}
	}
	return nil
}

// JobState is the status-specific view of a job. It is one of
// QueuedState, ProcessingState, CompletedState or FailedState.
type JobState interface {
	Status() JobStatus
}

type QueuedState struct{}

type ProcessingState struct {
	StartedAt time.Time
}

type CompletedState struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Result      Transcript
}

type FailedState struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Message     string
}

func (QueuedState) Status() JobStatus     { return JobStatusQueued }
func (ProcessingState) Status() JobStatus { return JobStatusProcessing }
func (CompletedState) Status() JobStatus  { return JobStatusCompleted }
func (FailedState) Status() JobStatus     { return JobStatusError }

// State returns the tagged view of the job's current status
func (j Job) State() JobState {
	switch j.Status {
	case JobStatusProcessing:
		return ProcessingState{StartedAt: deref(j.StartedAt)}
	case JobStatusCompleted:
		var result Transcript
		if j.Result != nil {
			result = j.Result.Clone()
		}
		return CompletedState{StartedAt: deref(j.StartedAt), CompletedAt: deref(j.CompletedAt), Result: result}
	case JobStatusError:
		return FailedState{StartedAt: deref(j.StartedAt), CompletedAt: deref(j.CompletedAt), Message: j.ErrorMessage}
	default:
		return QueuedState{}
	}
}

func transitionError(from, to JobStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
