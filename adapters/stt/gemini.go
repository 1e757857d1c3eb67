package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiMaxAttempts  = 3
)

const geminiPrompt = `Transcribe the attached audio. Respond with JSON only, shaped as:
{"language": "<ISO 639-1 code>", "language_probability": <0..1>,
 "language_candidates": [{"language": "<code>", "probability": <0..1>}],
 "segments": [{"start": <seconds>, "end": <seconds>, "text": "<phrase>"}]}
Split segments at natural pauses.`

// GeminiConfig configures the Gemini transcription adapter
type GeminiConfig struct {
	APIKey string
	Model  string
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
	}
	return nil
}

// GeminiSpeechToText transcribes audio with a multimodal Gemini model
type GeminiSpeechToText struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiSpeechToText creates a Gemini-backed transcriber
func NewGeminiSpeechToText(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiSpeechToText, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	return &GeminiSpeechToText{client: client, model: model, logger: logger}, nil
}

// Name implements repositories.SpeechToText
func (g *GeminiSpeechToText) Name() string { return "gemini" }

// TranscribeAudio implements repositories.SpeechToText
func (g *GeminiSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*entities.Transcript, error) {
	if len(audioData) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	prompt := geminiPrompt
	if config.Language != "" {
		prompt += fmt.Sprintf("\nThe spoken language is %q; report it as the language.", config.Language)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(audioData, audioMIMEType(config.Encoding)),
		}, genai.RoleUser),
	}
	generateConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < geminiMaxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, generateConfig)
		if err == nil || ctx.Err() != nil {
			break
		}

		g.logger.Warn("Failed to generate transcript, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < geminiMaxAttempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("gemini transcription failed: %w", err)
	}

	transcript, err := parseGeminiTranscript(response.Text(), config.Language)
	if err != nil {
		return nil, err
	}
	return &transcript, nil
}

type geminiTranscript struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	LanguageCandidates  []struct {
		Language    string  `json:"language"`
		Probability float64 `json:"probability"`
	} `json:"language_candidates"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// parseGeminiTranscript decodes the model's JSON answer. Models sometimes wrap
// JSON in a markdown fence, which is stripped first.
func parseGeminiTranscript(text, forcedLanguage string) (entities.Transcript, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var raw geminiTranscript
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return entities.Transcript{}, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(raw.Segments) == 0 {
		return entities.Transcript{}, fmt.Errorf("no speech detected in audio")
	}

	transcript := entities.Transcript{
		Language:            strings.ToLower(raw.Language),
		LanguageProbability: clampProbability(raw.LanguageProbability),
	}
	for _, seg := range raw.Segments {
		transcript.Segments = append(transcript.Segments, entities.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	for _, c := range raw.LanguageCandidates {
		transcript.LanguageCandidates = append(transcript.LanguageCandidates, entities.LanguageCandidate{
			Language:    strings.ToLower(c.Language),
			Probability: clampProbability(c.Probability),
		})
	}

	if forcedLanguage != "" {
		transcript.Language = strings.ToLower(forcedLanguage)
		transcript.LanguageProbability = 1
	}
	if transcript.Language == "" {
		return entities.Transcript{}, fmt.Errorf("gemini response has no language")
	}
	return transcript.Normalize(), nil
}

func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// audioMIMEType maps a file extension to the MIME type sent with inline audio
func audioMIMEType(ext string) string {
	switch strings.ToLower(ext) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "m4a", "mp4":
		return "audio/mp4"
	case "flac":
		return "audio/flac"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	case "aac":
		return "audio/aac"
	case "wma":
		return "audio/x-ms-wma"
	case "amr":
		return "audio/amr"
	default:
		return "application/octet-stream"
	}
}
