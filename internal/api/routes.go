package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/internal/auth"
	"github.com/satriahrh/transcriber/internal/websocket"
)

// InitRoutes initializes all API routes. With a nil issuer every route is public.
func InitRoutes(e *echo.Echo, h *Handler, stream *websocket.StatusStream, issuer *auth.Issuer, logger *zap.Logger) {
	// Health check
	e.GET("/health", h.Health)

	var protected []echo.MiddlewareFunc
	if issuer != nil {
		protected = append(protected, JWTMiddleware(issuer, logger))
	}

	// Transcription APIs
	e.POST("/transcribe", h.Transcribe, protected...)
	e.POST("/transcribe-async", h.TranscribeAsync, protected...)

	// Job APIs
	e.GET("/transcribe-status/:id", h.JobStatus, protected...)
	e.GET("/transcribe-status/:id/ws", stream.Handle, protected...)
	e.GET("/transcribe-jobs", h.ListJobs, protected...)
	e.GET("/transcribe-history", h.History, protected...)
}
