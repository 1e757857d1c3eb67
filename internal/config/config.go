// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Speech-to-text backends
const (
	STTMock    = "mock"
	STTWhisper = "whisper"
	STTGoogle  = "google"
	STTGemini  = "gemini"
)

// Archive backends
const (
	ArchiveNone   = "none"
	ArchiveSQLite = "sqlite"
	ArchiveMongo  = "mongo"
)

// Config holds all server settings in correct types
type Config struct {
	Port              string
	Env               string
	TempDir           string
	MaxUploadMB       int
	MaxConcurrentJobs int
	SyncTimeout       time.Duration
	JobRetention      time.Duration
	JanitorInterval   time.Duration
	ShutdownGrace     time.Duration

	STTBackend string
	Whisper    WhisperConfig
	Google     GoogleConfig
	Gemini     GeminiConfig

	ArchiveBackend    string
	ArchiveSQLitePath string
	MongoURI          string
	MongoDatabase     string

	JWTSecret      string
	AllowedOrigins []string
}

type WhisperConfig struct {
	URL    string
	Model  string
	APIKey string
}

type GoogleConfig struct {
	Language             string
	AlternativeLanguages []string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// IsDevelopment reports whether APP_ENV selects development logging
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads the environment. Malformed numbers and durations fall back to
// their defaults with a warning; unknown backends are an error.
func Load(logger *zap.Logger) (*Config, error) {
	l := loader{logger: logger}
	cfg := &Config{
		Port:              l.str("PORT", "8080"),
		Env:               l.str("APP_ENV", "production"),
		TempDir:           l.str("TEMP_DIR", "./temp"),
		MaxUploadMB:       l.positiveInt("MAX_UPLOAD_MB", 500),
		MaxConcurrentJobs: l.positiveInt("MAX_CONCURRENT_JOBS", 2),
		SyncTimeout:       l.duration("SYNC_TIMEOUT", 30*time.Minute, false),
		JobRetention:      l.duration("JOB_RETENTION", 0, true),
		JanitorInterval:   l.duration("JANITOR_INTERVAL", 5*time.Minute, false),
		ShutdownGrace:     l.duration("SHUTDOWN_GRACE", 30*time.Second, true),

		STTBackend: strings.ToLower(l.str("STT_BACKEND", STTMock)),
		Whisper: WhisperConfig{
			URL:    l.str("WHISPER_URL", "http://localhost:8000"),
			Model:  l.str("WHISPER_MODEL", "base"),
			APIKey: l.str("WHISPER_API_KEY", ""),
		},
		Google: GoogleConfig{
			Language:             l.str("GOOGLE_SPEECH_LANGUAGE", "en-US"),
			AlternativeLanguages: l.list("GOOGLE_SPEECH_ALT_LANGUAGES", nil),
		},
		Gemini: GeminiConfig{
			APIKey: l.str("GEMINI_API_KEY", ""),
			Model:  l.str("GEMINI_MODEL", "gemini-2.0-flash"),
		},

		ArchiveBackend:    strings.ToLower(l.str("ARCHIVE_BACKEND", ArchiveNone)),
		ArchiveSQLitePath: l.str("ARCHIVE_SQLITE_PATH", "./data/jobs.db"),
		MongoURI:          l.str("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     l.str("MONGODB_DATABASE", "transcriber"),

		JWTSecret:      l.str("API_JWT_SECRET", ""),
		AllowedOrigins: l.list("ALLOWED_ORIGINS", []string{"*"}),
	}

	switch cfg.STTBackend {
	case STTMock, STTWhisper, STTGoogle, STTGemini:
	default:
		return nil, fmt.Errorf("unknown STT_BACKEND %q", cfg.STTBackend)
	}
	switch cfg.ArchiveBackend {
	case ArchiveNone, ArchiveSQLite, ArchiveMongo:
	default:
		return nil, fmt.Errorf("unknown ARCHIVE_BACKEND %q", cfg.ArchiveBackend)
	}
	if cfg.STTBackend == STTGemini && cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when STT_BACKEND=gemini")
	}

	return cfg, nil
}

type loader struct {
	logger *zap.Logger
}

func (l loader) str(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (l loader) positiveInt(key string, fallback int) int {
	raw := l.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		l.logger.Warn("Invalid config value, using default",
			zap.String("key", key), zap.String("value", raw), zap.Int("default", fallback))
		return fallback
	}
	return n
}

func (l loader) duration(key string, fallback time.Duration, allowZero bool) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		l.logger.Warn("Invalid config value, using default",
			zap.String("key", key), zap.String("value", raw), zap.Duration("default", fallback))
		return fallback
	}
	return d
}

func (l loader) list(key string, fallback []string) []string {
	raw := l.str(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
