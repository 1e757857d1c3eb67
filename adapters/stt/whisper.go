package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

const (
	defaultWhisperBaseURL = "http://localhost:8000"
	defaultWhisperModel   = "base"
	whisperErrorBodyLimit = 2048
)

// WhisperConfig configures the whisper adapter. The server must expose the
// OpenAI-compatible /v1/audio/transcriptions endpoint (faster-whisper-server,
// speaches, whisper.cpp server or OpenAI itself).
type WhisperConfig struct {
	BaseURL    string
	Model      string
	APIKey     string        // Optional bearer token
	Timeout    time.Duration // Optional: per-request timeout, zero means none
	HTTPClient *http.Client  // Optional: overrides Timeout
}

// WhisperSpeechToText implements SpeechToText against a whisper HTTP server
type WhisperSpeechToText struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

type whisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperResponse struct {
	Text                string             `json:"text"`
	Language            string             `json:"language"`
	LanguageProbability *float64           `json:"language_probability,omitempty"`
	AllLanguageProbs    map[string]float64 `json:"all_language_probs,omitempty"`
	Segments            []whisperSegment   `json:"segments"`
}

// NewWhisperSpeechToText creates a whisper adapter
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultWhisperBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("whisper base URL must start with http:// or https://, got %q", baseURL)
	}

	model := config.Model
	if model == "" {
		model = defaultWhisperModel
	}

	// Long files can take hours; without a Timeout only the caller's context bounds a request
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &WhisperSpeechToText{
		baseURL: baseURL,
		model:   model,
		apiKey:  config.APIKey,
		client:  client,
		logger:  logger,
	}, nil
}

// Name implements repositories.SpeechToText
func (w *WhisperSpeechToText) Name() string { return "whisper" }

// TranscribeAudio implements repositories.SpeechToText
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*entities.Transcript, error) {
	if len(audioData) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	body, contentType, err := w.buildRequestBody(audioData, config)
	if err != nil {
		return nil, fmt.Errorf("failed to build whisper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	w.logger.Debug("Sending audio to whisper server",
		zap.String("url", req.URL.String()),
		zap.String("model", w.model),
		zap.Int("audioSize", len(audioData)))

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, whisperErrorBodyLimit))
		return nil, fmt.Errorf("whisper http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode whisper response: %w", err)
	}

	transcript := parsed.toTranscript(config.Language)
	return &transcript, nil
}

func (w *WhisperSpeechToText) buildRequestBody(audioData []byte, config repositories.AudioConfig) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := config.Filename
	if filename == "" {
		filename = "audio"
		if config.Encoding != "" {
			filename += "." + config.Encoding
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audioData); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":                     w.model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	if config.Language != "" {
		fields["language"] = config.Language
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func (r whisperResponse) toTranscript(requested string) entities.Transcript {
	language := strings.ToLower(strings.TrimSpace(r.Language))
	if language == "" {
		language = requested
	}

	var probability float64
	switch {
	case r.LanguageProbability != nil:
		probability = *r.LanguageProbability
	case requested != "":
		probability = 1
	}

	candidates := make([]entities.LanguageCandidate, 0, len(r.AllLanguageProbs))
	for lang, prob := range r.AllLanguageProbs {
		candidates = append(candidates, entities.LanguageCandidate{Language: lang, Probability: prob})
	}
	if len(candidates) == 0 && language != "" {
		candidates = append(candidates, entities.LanguageCandidate{Language: language, Probability: probability})
	}

	segments := make([]entities.Segment, 0, len(r.Segments))
	for _, s := range r.Segments {
		segments = append(segments, entities.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	if len(segments) == 0 && strings.TrimSpace(r.Text) != "" {
		segments = append(segments, entities.Segment{Text: r.Text})
	}

	return entities.Transcript{
		Text:                r.Text,
		Language:            language,
		LanguageProbability: probability,
		LanguageCandidates:  candidates,
		Segments:            segments,
	}.Normalize()
}
