package api

import (
	"time"

	"github.com/satriahrh/transcriber/domain/entities"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SyncTranscribeResponse is the body of a successful POST /transcribe
type SyncTranscribeResponse struct {
	Success bool `json:"success"`
	entities.Transcript
}

// SyncErrorResponse is the body of a failed POST /transcribe
type SyncErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AsyncSubmitResponse is returned with 202 by POST /transcribe-async
type AsyncSubmitResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	CheckStatusURL string `json:"check_status_url"`
}

// JobStatusResponse is the status-shaped view of a job. Queued and processing
// jobs carry only timestamps and the filename; completed adds result; error
// adds error_message.
type JobStatusResponse struct {
	JobID             string               `json:"job_id"`
	Status            string               `json:"status"`
	Filename          string               `json:"filename"`
	LanguageRequested *string              `json:"language_requested"`
	CreatedAt         time.Time            `json:"created_at"`
	StartedAt         *time.Time           `json:"started_at,omitempty"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	Result            *entities.Transcript `json:"result,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
}

// NewJobStatusResponse converts a job snapshot to its wire form
func NewJobStatusResponse(job entities.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     job.ID,
		Filename:  job.Filename,
		CreatedAt: job.CreatedAt,
	}
	if job.LanguageRequested != "" {
		lang := job.LanguageRequested
		resp.LanguageRequested = &lang
	}

	state := job.State()
	resp.Status = string(state.Status())
	switch s := state.(type) {
	case entities.QueuedState:
	case entities.ProcessingState:
		resp.StartedAt = timePtr(s.StartedAt)
	case entities.CompletedState:
		resp.StartedAt = timePtr(s.StartedAt)
		resp.CompletedAt = timePtr(s.CompletedAt)
		result := s.Result
		resp.Result = &result
	case entities.FailedState:
		resp.StartedAt = timePtr(s.StartedAt)
		resp.CompletedAt = timePtr(s.CompletedAt)
		resp.ErrorMessage = s.Message
	}
	return resp
}

// RenderJobStatus adapts NewJobStatusResponse for the status stream
func RenderJobStatus(job entities.Job) interface{} {
	return NewJobStatusResponse(job)
}

func newJobStatusList(jobs []entities.Job) []JobStatusResponse {
	out := make([]JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, NewJobStatusResponse(job))
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
