package repositories

import (
	"context"

	"github.com/satriahrh/transcriber/domain/entities"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete audio payload into a transcript
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (*entities.Transcript, error)
	// Name identifies the backend in logs
	Name() string
}

// AudioConfig describes the payload handed to a SpeechToText backend
type AudioConfig struct {
	Filename string `json:"filename"`
	Encoding string `json:"encoding"` // lower-case file extension without the dot, e.g. "mp3"
	Language string `json:"language"` // empty means auto-detect
}
