package stt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

const defaultGoogleLanguage = "en-US"

// GoogleConfig configures the Google Cloud Speech-to-Text adapter.
// Credentials come from Application Default Credentials.
type GoogleConfig struct {
	LanguageCode             string   // Used when the caller gives no hint
	AlternativeLanguageCodes []string // Candidates for automatic language detection
	Model                    string   // Optional recognition model, e.g. "latest_long"
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	config GoogleConfig
	logger *zap.Logger
}

// NewGoogleSpeechToText creates a Google Cloud adapter
func NewGoogleSpeechToText(config GoogleConfig, logger *zap.Logger) *GoogleSpeechToText {
	if config.LanguageCode == "" {
		config.LanguageCode = defaultGoogleLanguage
	}
	return &GoogleSpeechToText{config: config, logger: logger}
}

// Name implements repositories.SpeechToText
func (g *GoogleSpeechToText) Name() string { return "google" }

// TranscribeAudio converts audio data to text using Google Cloud Speech-to-Text.
// LongRunningRecognize is used so that long recordings do not hit the
// synchronous recognize duration limit.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (*entities.Transcript, error) {
	if len(audioData) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	languageCode := g.config.LanguageCode
	var alternatives []string
	if config.Language != "" {
		languageCode = config.Language
	} else {
		alternatives = g.config.AlternativeLanguageCodes
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	op, err := client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			LanguageCode:               languageCode,
			AlternativeLanguageCodes:   alternatives,
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: true,
			Model:                      g.config.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start recognition: %w", err)
	}

	g.logger.Info("Google recognition started",
		zap.String("operation", op.Name()),
		zap.String("language", languageCode),
		zap.Strings("alternatives", alternatives))

	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	transcript := googleResultsToTranscript(resp.GetResults(), languageCode, config.Language != "")
	if len(transcript.Segments) == 0 {
		return nil, fmt.Errorf("no speech detected in audio")
	}
	return &transcript, nil
}

// googleResultsToTranscript turns recognition results into a transcript. Each
// result becomes one segment; language candidates are the share of results
// recognized in each language.
func googleResultsToTranscript(results []*speechpb.SpeechRecognitionResult, fallbackLanguage string, forced bool) entities.Transcript {
	var segments []entities.Segment
	counts := make(map[string]int)
	var previousEnd float64

	for _, result := range results {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		best := alternatives[0]

		start := previousEnd
		if words := best.GetWords(); len(words) > 0 {
			start = words[0].GetStartTime().AsDuration().Seconds()
		}
		end := result.GetResultEndTime().AsDuration().Seconds()
		previousEnd = end

		segments = append(segments, entities.Segment{Start: start, End: end, Text: best.GetTranscript()})

		language := strings.ToLower(result.GetLanguageCode())
		if language == "" {
			language = strings.ToLower(fallbackLanguage)
		}
		counts[language]++
	}

	candidates := make([]entities.LanguageCandidate, 0, len(counts))
	for language, n := range counts {
		candidates = append(candidates, entities.LanguageCandidate{
			Language:    language,
			Probability: float64(n) / float64(len(segments)),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Probability == candidates[j].Probability {
			return candidates[i].Language < candidates[j].Language
		}
		return candidates[i].Probability > candidates[j].Probability
	})

	transcript := entities.Transcript{
		Language:           strings.ToLower(fallbackLanguage),
		LanguageCandidates: candidates,
		Segments:           segments,
	}
	if len(candidates) > 0 {
		transcript.Language = candidates[0].Language
		transcript.LanguageProbability = candidates[0].Probability
	}
	if forced {
		transcript.LanguageProbability = 1
	}
	return transcript.Normalize()
}

// getAudioEncoding maps a file extension to the Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToLower(encoding) {
	case "wav", "linear16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "flac":
		return speechpb.RecognitionConfig_FLAC, nil
	case "amr":
		return speechpb.RecognitionConfig_AMR, nil
	case "ogg", "oga", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding for google speech: %s", encoding)
	}
}
