package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition,
// used when no real backend is configured
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// Name implements repositories.SpeechToText
func (s *MockSpeechToText) Name() string { return "mock" }

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*entities.Transcript, error) {
	s.logger.Info("Processing mock speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("filename", config.Filename),
		zap.String("language", config.Language))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	language := config.Language
	probability := 1.0
	if language == "" {
		language = "en"
		probability = 0.97
	}

	// Mock transcription based on audio size
	var segments []entities.Segment
	switch {
	case len(audioData) > 10000:
		segments = []entities.Segment{
			{Start: 0, End: 2.4, Text: "Hello, this is a longer recording."},
			{Start: 2.4, End: 5.1, Text: "It has been split into two segments."},
		}
	case len(audioData) > 1000:
		segments = []entities.Segment{{Start: 0, End: 1.8, Text: "Hello there."}}
	default:
		segments = []entities.Segment{{Start: 0, End: 0.5, Text: "Hi"}}
	}

	transcript := entities.Transcript{
		Language:            language,
		LanguageProbability: probability,
		LanguageCandidates: []entities.LanguageCandidate{
			{Language: language, Probability: probability},
			{Language: "de", Probability: 0.01},
		},
		Segments: segments,
	}.Normalize()
	return &transcript, nil
}
