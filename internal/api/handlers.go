package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
	"github.com/satriahrh/transcriber/internal/jobs"
	"github.com/satriahrh/transcriber/usecase"
)

const (
	defaultHistoryLimit = 25
	maxHistoryLimit     = 100
)

// Submitter schedules a job for background execution
type Submitter interface {
	Submit(task jobs.Task) error
}

// Stager persists uploaded payloads for the executor
type Stager interface {
	Put(name string, r io.Reader) (string, int64, error)
	Remove(path string) error
}

// Handler serves the transcription endpoints
type Handler struct {
	service  *usecase.TranscriptionService
	repo     repositories.JobRepository
	executor Submitter
	staging  Stager
	archive  repositories.JobArchive
	logger   *zap.Logger
}

// NewHandler creates the HTTP handlers. archive may be nil.
func NewHandler(
	service *usecase.TranscriptionService,
	repo repositories.JobRepository,
	executor Submitter,
	staging Stager,
	archive repositories.JobArchive,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service:  service,
		repo:     repo,
		executor: executor,
		staging:  staging,
		archive:  archive,
		logger:   logger,
	}
}

// Health reports liveness
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Transcribe is the synchronous path: the request waits for the transcript
func (h *Handler) Transcribe(c echo.Context) error {
	upload, file, err := h.readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, SyncErrorResponse{Success: false, Error: err.Error()})
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.String("filename", upload.Filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, SyncErrorResponse{Success: false, Error: "failed to read uploaded file"})
	}

	transcript, err := h.service.TranscribeSync(c.Request().Context(), upload, audio)
	if err != nil {
		h.logger.Error("Synchronous transcription failed", zap.String("filename", upload.Filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, SyncErrorResponse{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, SyncTranscribeResponse{Success: true, Transcript: transcript})
}

// TranscribeAsync stages the upload, creates a queued job and schedules it.
// It returns before transcription begins.
func (h *Handler) TranscribeAsync(c echo.Context) error {
	ctx := c.Request().Context()

	upload, file, err := h.readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	}
	defer file.Close()

	path, _, err := h.staging.Put(uuid.New().String()+"."+upload.Extension, file)
	if err != nil {
		h.logger.Error("Failed to stage upload", zap.String("filename", upload.Filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "staging_failed", Message: "Failed to store uploaded file"})
	}

	jobID, err := h.repo.Create(ctx, upload.Filename, upload.Language)
	if err != nil {
		h.staging.Remove(path)
		h.logger.Error("Failed to create job", zap.String("filename", upload.Filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to create job"})
	}

	if err := h.executor.Submit(jobs.Task{JobID: jobID, Upload: upload, PayloadPath: path}); err != nil {
		h.staging.Remove(path)
		h.abandon(c, jobID, err)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: err.Error()})
	}

	h.logger.Info("Job queued",
		zap.String("job_id", jobID),
		zap.String("filename", upload.Filename),
		zap.String("language", upload.Language))

	return c.JSON(http.StatusAccepted, AsyncSubmitResponse{
		JobID:          jobID,
		Status:         string(entities.JobStatusQueued),
		CheckStatusURL: fmt.Sprintf("/transcribe-status/%s", jobID),
	})
}

// abandon moves a job that could not be scheduled to error, so it never sits in queued
func (h *Handler) abandon(c echo.Context, jobID string, cause error) {
	_, err := h.repo.Update(c.Request().Context(), jobID, func(job *entities.Job) error {
		now := job.CreatedAt
		if err := job.Start(now); err != nil {
			return err
		}
		return job.Fail(cause.Error(), now)
	})
	if err != nil {
		h.logger.Error("Failed to abandon job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// JobStatus returns the status-shaped view of one job
func (h *Handler) JobStatus(c echo.Context) error {
	jobID := c.Param("id")

	job, err := h.repo.Get(c.Request().Context(), jobID)
	if errors.Is(err, repositories.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "job_not_found", Message: fmt.Sprintf("Job %s not found", jobID)})
	}
	if err != nil {
		h.logger.Error("Failed to get job", zap.String("job_id", jobID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}

	return c.JSON(http.StatusOK, NewJobStatusResponse(job))
}

// ListJobs returns every job in the registry, optionally filtered by ?status=
func (h *Handler) ListJobs(c echo.Context) error {
	var filter entities.JobStatus
	if raw := c.QueryParam("status"); raw != "" {
		status, err := entities.ParseJobStatus(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_status", Message: err.Error()})
		}
		filter = status
	}

	all, err := h.repo.List(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}

	selected := all[:0]
	for _, job := range all {
		if filter == "" || job.Status == filter {
			selected = append(selected, job)
		}
	}
	return c.JSON(http.StatusOK, newJobStatusList(selected))
}

// History lists archived terminal jobs, newest first
func (h *Handler) History(c echo.Context) error {
	if h.archive == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "archive_disabled", Message: "No job archive is configured"})
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_limit", Message: "limit must be a positive integer"})
		}
		limit = min(n, maxHistoryLimit)
	}

	archived, err := h.archive.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read job archive", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "archive_error", Message: "Failed to read job history"})
	}
	return c.JSON(http.StatusOK, newJobStatusList(archived))
}

// readUpload extracts and validates the multipart file and language hint.
// The language may come from the form or the query string.
func (h *Handler) readUpload(c echo.Context) (usecase.Upload, multipart.File, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return usecase.Upload{}, nil, &usecase.ValidationError{Message: "no file provided"}
	}

	language := c.FormValue("language")
	if language == "" {
		language = c.QueryParam("language")
	}

	upload, err := usecase.ValidateUpload(header.Filename, header.Size, language)
	if err != nil {
		h.logger.Warn("Rejected upload", zap.String("filename", header.Filename), zap.Error(err))
		return usecase.Upload{}, nil, err
	}

	file, err := header.Open()
	if err != nil {
		return usecase.Upload{}, nil, &usecase.ValidationError{Message: "failed to open uploaded file"}
	}
	return upload, file, nil
}
