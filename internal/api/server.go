package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/editor"
	"github.com/heimdex/heimdex-timeline/internal/playback"
	"github.com/heimdex/heimdex-timeline/internal/segmentation"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port          int
	Version       string
	Editor        *editor.Editor
	Segmentations *segmentation.Service
	Tokens        TokenSource
	FrameServer   *playback.FrameServer
	ExportDir     string
	Logger        *slog.Logger
	StartTime     time.Time
	// PreviewWait bounds POST /preview?wait=1; zero selects DefaultPreviewWait.
	PreviewWait   time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
