package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
)

type Server struct {
	port              int
	registry          *GroupRegistry
	connectionManager *ConnectionManager
	gateway           *Gateway
	rateLimiter       *RateLimiter
	log               zerolog.Logger
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 3000
	}

	log := newLogger()

	connectionManager := NewConnectionManager()

	s := &Server{
		port:              port,
		registry:          NewGroupRegistry(),
		connectionManager: connectionManager,
		gateway:           NewGateway(connectionManager, log),
		rateLimiter:       NewRateLimiter(20, time.Second),
		log:               log,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer
}

// Shutdown closes every live socket so clients see a clean going-away close
// instead of a dropped TCP connection. Group state is in-memory only and
// dies with the process.
func (s *Server) Shutdown(ctx context.Context) error {
	sessions := s.connectionManager.SessionIDs()
	s.log.Info().Int("connections", len(sessions)).Msg("closing live connections")

	for _, sessionID := range sessions {
		conn := s.connectionManager.GetConnection(sessionID)
		if conn == nil {
			continue
		}
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}

	return nil
}

func newLogger() zerolog.Logger {
	if lvl, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
