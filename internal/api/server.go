// Package api exposes the analysis service over HTTP: job submission and
// inspection, signed clip transfer, annotated video playback, report export,
// and drill recommendations.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/jobs"
	"github.com/formsight/formsight-server/internal/playback"
	"github.com/formsight/formsight-server/internal/storage"
)

// SportDetector classifies the sport of a stored clip.
type SportDetector interface {
	DetectSport(ctx context.Context, path string) (analysis.SportGuess, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	Version   string
	AuthToken string
	MaxUpload int64

	Jobs     *jobs.Service
	Store    *storage.Store
	Signer   *storage.Signer
	Playback *playback.Server
	Detector SportDetector

	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
			// Uploads and range streams run long; only the header read is
			// bounded.
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
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
