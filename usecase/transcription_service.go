package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

// DefaultSyncTimeout bounds the synchronous path when no timeout is configured
const DefaultSyncTimeout = 30 * time.Minute

var supportedExtensions = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "flac": true, "ogg": true, "oga": true,
	"opus": true, "webm": true, "mp4": true, "aac": true, "wma": true, "amr": true,
}

var languagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z-]{1,7}$`)

// ValidationError reports an upload the service refuses to transcribe
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidationError reports whether err is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Upload is a validated description of a submitted audio file
type Upload struct {
	Filename  string
	Extension string // lower-case, without the dot
	Language  string // empty means auto-detect
}

// ValidateUpload checks the file name, size and language hint of a submission
func ValidateUpload(filename string, size int64, language string) (Upload, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return Upload{}, &ValidationError{Message: "no file provided"}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !supportedExtensions[ext] {
		return Upload{}, &ValidationError{Message: fmt.Sprintf("unsupported file format %q", filepath.Ext(filename))}
	}
	if size <= 0 {
		return Upload{}, &ValidationError{Message: "uploaded file is empty"}
	}

	language = strings.TrimSpace(language)
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	if language != "" && !languagePattern.MatchString(language) {
		return Upload{}, &ValidationError{Message: fmt.Sprintf("invalid language code %q", language)}
	}

	return Upload{Filename: filename, Extension: ext, Language: language}, nil
}

// TranscriptionService runs the Transcription Capability for both execution paths
type TranscriptionService struct {
	speechToText repositories.SpeechToText
	syncTimeout  time.Duration
	logger       *zap.Logger
}

// NewTranscriptionService creates a new transcription service
func NewTranscriptionService(stt repositories.SpeechToText, syncTimeout time.Duration, logger *zap.Logger) *TranscriptionService {
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	return &TranscriptionService{
		speechToText: stt,
		syncTimeout:  syncTimeout,
		logger:       logger,
	}
}

// Transcribe invokes the backend and normalizes its result. It has no deadline
// of its own; the async path relies on that.
func (s *TranscriptionService) Transcribe(ctx context.Context, upload Upload, audio []byte) (entities.Transcript, error) {
	start := time.Now()
	s.logger.Info("Transcribing audio",
		zap.String("backend", s.speechToText.Name()),
		zap.String("filename", upload.Filename),
		zap.String("language", upload.Language),
		zap.Int("size", len(audio)))

	result, err := s.speechToText.TranscribeAudio(ctx, audio, repositories.AudioConfig{
		Filename: upload.Filename,
		Encoding: upload.Extension,
		Language: upload.Language,
	})
	if err != nil {
		return entities.Transcript{}, fmt.Errorf("transcription failed: %w", err)
	}
	if result == nil {
		return entities.Transcript{}, errors.New("transcription failed: backend returned no result")
	}

	transcript := result.Normalize()
	s.logger.Info("Detected language",
		zap.String("filename", upload.Filename),
		zap.String("language", transcript.Language),
		zap.Float64("probability", transcript.LanguageProbability),
		zap.Any("top_candidates", transcript.TopCandidates(5)),
		zap.Int("segments", len(transcript.Segments)),
		zap.Duration("elapsed", time.Since(start)))

	return transcript, nil
}

// TranscribeSync is the synchronous path: Transcribe bounded by the sync timeout
func (s *TranscriptionService) TranscribeSync(ctx context.Context, upload Upload, audio []byte) (entities.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	transcript, err := s.Transcribe(ctx, upload, audio)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entities.Transcript{}, fmt.Errorf("transcription exceeded %s, use /transcribe-async for long files: %w", s.syncTimeout, err)
	}
	return transcript, err
}
