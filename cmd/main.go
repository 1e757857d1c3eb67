package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/adapters"
	"github.com/satriahrh/transcriber/adapters/mongo"
	"github.com/satriahrh/transcriber/adapters/sqlite"
	"github.com/satriahrh/transcriber/adapters/stt"
	"github.com/satriahrh/transcriber/domain/repositories"
	"github.com/satriahrh/transcriber/internal/api"
	"github.com/satriahrh/transcriber/internal/auth"
	"github.com/satriahrh/transcriber/internal/config"
	"github.com/satriahrh/transcriber/internal/jobs"
	"github.com/satriahrh/transcriber/internal/staging"
	"github.com/satriahrh/transcriber/internal/websocket"
	"github.com/satriahrh/transcriber/usecase"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for the given client id and exit")
	flag.Parse()

	// Optional .env for local development
	_ = godotenv.Load()

	bootLogger, _ := zap.NewProduction()
	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize logger
	logger := bootLogger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	if *issueToken != "" {
		if cfg.JWTSecret == "" {
			logger.Fatal("API_JWT_SECRET must be set to issue tokens")
		}
		token, expiresAt, err := auth.NewIssuer(cfg.JWTSecret, 0).GenerateClientToken(*issueToken)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
		return
	}

	ctx := context.Background()

	// Initialize adapters
	speechToText, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text backend", zap.Error(err))
	}
	archive, err := newArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize job archive", zap.Error(err))
	}
	area, err := staging.New(cfg.TempDir)
	if err != nil {
		logger.Fatal("Failed to initialize staging area", zap.Error(err))
	}
	jobRepo := adapters.NewMemoryJobRepository()

	// Initialize usecase services and workers
	service := usecase.NewTranscriptionService(speechToText, cfg.SyncTimeout, logger)
	executor := jobs.NewExecutor(jobRepo, service, area, archive, cfg.MaxConcurrentJobs, logger)
	janitor := jobs.NewJanitor(jobRepo, cfg.JobRetention, cfg.JanitorInterval, logger)
	janitor.Start()

	var issuer *auth.Issuer
	if cfg.JWTSecret != "" {
		issuer = auth.NewIssuer(cfg.JWTSecret, 0)
	} else {
		logger.Warn("API_JWT_SECRET not set, API is unauthenticated")
	}

	// Initialize API routes
	e := api.NewServer(api.ServerConfig{AllowedOrigins: cfg.AllowedOrigins, MaxUploadMB: cfg.MaxUploadMB}, logger)
	handler := api.NewHandler(service, jobRepo, executor, area, archive, logger)
	stream := websocket.NewStatusStream(jobRepo, api.RenderJobStatus, cfg.AllowedOrigins, logger)
	api.InitRoutes(e, handler, stream, issuer, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Transcription server started",
		zap.String("port", cfg.Port),
		zap.String("stt_backend", speechToText.Name()),
		zap.String("archive_backend", cfg.ArchiveBackend),
		zap.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	janitor.Stop()
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("In-flight jobs were cancelled", zap.Error(err))
	}
	if archive != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := archive.Close(closeCtx); err != nil {
			logger.Error("Failed to close job archive", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch cfg.STTBackend {
	case config.STTWhisper:
		return stt.NewWhisperSpeechToText(stt.WhisperConfig{
			BaseURL: cfg.Whisper.URL,
			Model:   cfg.Whisper.Model,
			APIKey:  cfg.Whisper.APIKey,
		}, logger)
	case config.STTGoogle:
		return stt.NewGoogleSpeechToText(stt.GoogleConfig{
			LanguageCode:             cfg.Google.Language,
			AlternativeLanguageCodes: cfg.Google.AlternativeLanguages,
		}, logger), nil
	case config.STTGemini:
		return stt.NewGeminiSpeechToText(ctx, stt.GeminiConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		}, logger)
	default:
		logger.Warn("Using mock speech-to-text backend")
		return stt.NewMockSpeechToText(logger), nil
	}
}

// newArchive returns a nil interface when no archive is configured
func newArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.JobArchive, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveSQLite:
		return sqlite.Open(cfg.ArchiveSQLitePath, logger)
	case config.ArchiveMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, err
		}
		return mongo.NewJobArchive(client, logger), nil
	default:
		return nil, nil
	}
}
