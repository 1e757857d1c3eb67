package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/transcriber/domain/repositories"
)

func TestWhisperSpeechToText_TranscribeAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "small" {
			t.Errorf("Expected model small, got %s", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("Expected verbose_json, got %s", got)
		}
		if got := r.FormValue("language"); got != "" {
			t.Errorf("Expected no language field for auto-detect, got %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "a.mp3" || string(data) != "audio-bytes" {
			t.Errorf("Unexpected file %s with %q", header.Filename, data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"text": " hola  mundo",
			"language": "ES",
			"language_probability": 0.91234,
			"all_language_probs": {"es": 0.91234, "pt": 0.05, "it": 0.01},
			"segments": [
				{"id": 3, "start": 0.0, "end": 1.0, "text": " hola"},
				{"id": 4, "start": 1.0, "end": 2.0, "text": " mundo"}
			]
		}`)
	}))
	defer server.Close()

	whisper, err := NewWhisperSpeechToText(WhisperConfig{BaseURL: server.URL + "/", Model: "small", APIKey: "secret"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWhisperSpeechToText: %v", err)
	}

	result, err := whisper.TranscribeAudio(context.Background(), []byte("audio-bytes"), repositories.AudioConfig{Filename: "a.mp3", Encoding: "mp3"})
	if err != nil {
		t.Fatalf("TranscribeAudio failed: %v", err)
	}

	if result.Language != "es" {
		t.Errorf("Expected language es, got %s", result.Language)
	}
	if result.LanguageProbability != 0.9123 {
		t.Errorf("Expected probability 0.9123, got %v", result.LanguageProbability)
	}
	if len(result.LanguageCandidates) != 3 || result.LanguageCandidates[0].Language != "es" {
		t.Errorf("Expected sorted candidates led by es, got %+v", result.LanguageCandidates)
	}
	if len(result.Segments) != 2 || result.Segments[0].ID != 0 || result.Segments[1].Text != "mundo" {
		t.Errorf("Unexpected segments %+v", result.Segments)
	}
}

func TestWhisperSpeechToText_LanguageHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if got := r.FormValue("language"); got != "fr" {
			t.Errorf("Expected language fr, got %q", got)
		}
		_, _ = io.WriteString(w, `{"text": "bonjour", "segments": []}`)
	}))
	defer server.Close()

	whisper, _ := NewWhisperSpeechToText(WhisperConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	result, err := whisper.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{Language: "fr"})
	if err != nil {
		t.Fatalf("TranscribeAudio failed: %v", err)
	}
	if result.Language != "fr" || result.LanguageProbability != 1 {
		t.Errorf("Expected forced fr with probability 1, got %s %v", result.Language, result.LanguageProbability)
	}
	if len(result.Segments) != 1 || result.Segments[0].Text != "bonjour" {
		t.Errorf("Expected a single fallback segment, got %+v", result.Segments)
	}
}

func TestWhisperSpeechToText_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "decode failed", http.StatusInternalServerError)
	}))
	defer server.Close()

	whisper, _ := NewWhisperSpeechToText(WhisperConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	_, err := whisper.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	if err == nil {
		t.Fatal("Expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "decode failed") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}

func TestNewWhisperSpeechToText_InvalidURL(t *testing.T) {
	if _, err := NewWhisperSpeechToText(WhisperConfig{BaseURL: "localhost:8000"}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}
