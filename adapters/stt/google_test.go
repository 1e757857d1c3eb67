package stt

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/satriahrh/transcriber/domain/repositories"
)

var _ repositories.SpeechToText = &GoogleSpeechToText{}

func googleResult(text, language string, start, end time.Duration) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{
			Transcript: text,
			Confidence: 0.9,
			Words:      []*speechpb.WordInfo{{Word: text, StartTime: durationpb.New(start), EndTime: durationpb.New(end)}},
		}},
		ResultEndTime: durationpb.New(end),
		LanguageCode:  language,
	}
}

func TestGoogleResultsToTranscript(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		googleResult("hola", "es-ES", 0, time.Second),
		googleResult("que tal", "es-ES", 1500*time.Millisecond, 3*time.Second),
		googleResult("obrigado", "pt-BR", 3*time.Second, 4*time.Second),
		{ResultEndTime: durationpb.New(5 * time.Second)}, // no alternatives, skipped
	}

	transcript := googleResultsToTranscript(results, "en-US", false)

	if transcript.Text != "hola que tal obrigado" {
		t.Errorf("Unexpected text %q", transcript.Text)
	}
	if transcript.Language != "es-es" {
		t.Errorf("Expected detected language es-es, got %s", transcript.Language)
	}
	if transcript.LanguageProbability != 0.6667 {
		t.Errorf("Expected probability 0.6667, got %v", transcript.LanguageProbability)
	}
	if len(transcript.LanguageCandidates) != 2 {
		t.Errorf("Expected 2 candidates, got %+v", transcript.LanguageCandidates)
	}
	if len(transcript.Segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(transcript.Segments))
	}
	if transcript.Segments[1].Start != 1.5 || transcript.Segments[1].End != 3 {
		t.Errorf("Unexpected segment timing %+v", transcript.Segments[1])
	}
}

func TestGoogleResultsToTranscript_ForcedLanguage(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{googleResult("bonjour", "", 0, time.Second)}

	transcript := googleResultsToTranscript(results, "fr-FR", true)

	if transcript.Language != "fr-fr" || transcript.LanguageProbability != 1 {
		t.Errorf("Expected forced fr-fr with probability 1, got %s %v", transcript.Language, transcript.LanguageProbability)
	}
}

func TestGetAudioEncoding(t *testing.T) {
	cases := map[string]speechpb.RecognitionConfig_AudioEncoding{
		"wav":  speechpb.RecognitionConfig_LINEAR16,
		"FLAC": speechpb.RecognitionConfig_FLAC,
		"ogg":  speechpb.RecognitionConfig_OGG_OPUS,
		"webm": speechpb.RecognitionConfig_WEBM_OPUS,
	}
	for in, want := range cases {
		got, err := getAudioEncoding(in)
		if err != nil || got != want {
			t.Errorf("getAudioEncoding(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := getAudioEncoding("mp3"); err == nil {
		t.Error("Expected error for mp3")
	}
}

func TestGoogleSpeechToText_RejectsUnsupportedEncoding(t *testing.T) {
	g := NewGoogleSpeechToText(GoogleConfig{}, zaptest.NewLogger(t))
	if _, err := g.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{Encoding: "mp3"}); err == nil {
		t.Error("Expected error before contacting Google for mp3")
	}
}
