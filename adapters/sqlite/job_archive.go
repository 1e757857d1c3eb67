package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

// JobArchive implements repositories.JobArchive on a local SQLite file
type JobArchive struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ repositories.JobArchive = (*JobArchive)(nil)

// Open creates the database file and schema if needed
func Open(path string, logger *zap.Logger) (*JobArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  filename TEXT NOT NULL,
  language_requested TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER,
  result_json TEXT,
  error_message TEXT
);
CREATE INDEX IF NOT EXISTS jobs_completed_at ON jobs (completed_at DESC);
`); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite job archive", zap.String("path", path))
	return &JobArchive{db: db, logger: logger}, nil
}

// Store upserts the job by id
func (a *JobArchive) Store(ctx context.Context, job entities.Job) error {
	var resultJSON sql.NullString
	if job.Result != nil {
		raw, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, filename, language_requested, created_at, started_at, completed_at, result_json, error_message)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
           status = excluded.status,
           started_at = excluded.started_at,
           completed_at = excluded.completed_at,
           result_json = excluded.result_json,
           error_message = excluded.error_message`,
		job.ID,
		string(job.Status),
		job.Filename,
		job.LanguageRequested,
		job.CreatedAt.UnixMilli(),
		nullMillis(job.StartedAt),
		nullMillis(job.CompletedAt),
		resultJSON,
		sql.NullString{String: job.ErrorMessage, Valid: job.ErrorMessage != ""},
	)
	if err != nil {
		a.logger.Error("Failed to archive job", zap.Error(err), zap.String("job_id", job.ID))
	}
	return err
}

// Recent returns at most limit jobs, most recently completed first
func (a *JobArchive) Recent(ctx context.Context, limit int) ([]entities.Job, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, status, filename, language_requested, created_at, started_at, completed_at, result_json, error_message
       FROM jobs ORDER BY completed_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.Job{}
	for rows.Next() {
		var (
			job                    entities.Job
			status                 string
			createdMs              int64
			startedMs, completedMs sql.NullInt64
			resultJSON, errorMsg   sql.NullString
		)
		if err := rows.Scan(&job.ID, &status, &job.Filename, &job.LanguageRequested, &createdMs, &startedMs, &completedMs, &resultJSON, &errorMsg); err != nil {
			return nil, err
		}
		job.Status = entities.JobStatus(status)
		job.CreatedAt = time.UnixMilli(createdMs).UTC()
		job.StartedAt = fromMillis(startedMs)
		job.CompletedAt = fromMillis(completedMs)
		if resultJSON.Valid {
			var result entities.Transcript
			if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
				return nil, fmt.Errorf("failed to decode result of job %s: %w", job.ID, err)
			}
			job.Result = &result
		}
		if errorMsg.Valid {
			job.ErrorMessage = errorMsg.String
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Close closes the database
func (a *JobArchive) Close(ctx context.Context) error { return a.db.Close() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
