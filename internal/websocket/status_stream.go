package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/transcriber/domain/entities"
	"github.com/satriahrh/transcriber/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	defaultPollInterval = 500 * time.Millisecond
)

// Renderer converts a job snapshot into the message pushed to the client
type Renderer func(job entities.Job) interface{}

// StatusStream pushes a job's status to a WebSocket client whenever it changes
// and closes the connection once the job is terminal.
type StatusStream struct {
	repo         repositories.JobRepository
	render       Renderer
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewStatusStream creates a stream handler. allowedOrigins containing "*" accepts any origin.
func NewStatusStream(repo repositories.JobRepository, render Renderer, allowedOrigins []string, logger *zap.Logger) *StatusStream {
	return &StatusStream{
		repo:   repo,
		render: render,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Handle upgrades the request and streams the status of job :id
func (s *StatusStream) Handle(c echo.Context) error {
	jobID := c.Param("id")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err), zap.String("job_id", jobID))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go s.readPump(conn, cancel)

	s.stream(ctx, conn, jobID)
	return nil
}

// readPump drains control frames and cancels the stream when the peer goes away
func (s *StatusStream) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *StatusStream) stream(ctx context.Context, conn *websocket.Conn, jobID string) {
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var last entities.JobStatus
	for {
		job, err := s.repo.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, repositories.ErrJobNotFound) {
				s.write(conn, map[string]string{"error": "job_not_found"})
			} else {
				s.logger.Error("Failed to read job for stream", zap.Error(err), zap.String("job_id", jobID))
			}
			s.close(conn)
			return
		}

		if job.Status != last {
			if err := s.write(conn, s.render(job)); err != nil {
				return
			}
			last = job.Status
		}
		if job.Status.IsTerminal() {
			s.close(conn)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}

func (s *StatusStream) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("Failed to write status message", zap.Error(err))
		return err
	}
	return nil
}

func (s *StatusStream) close(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
