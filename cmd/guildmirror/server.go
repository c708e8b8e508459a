package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guildmirror/internal/constants"
	"guildmirror/internal/metrics"
	"guildmirror/internal/models"
	"guildmirror/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the ops endpoints: health with per-channel backfill state,
// and a metrics snapshot.
type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	scanner *service.BackfillScanner
	cfg     models.ServerConfig
	server  *http.Server
}

func NewServer(cfg models.ServerConfig, scanner *service.BackfillScanner, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		scanner: scanner,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	type response struct {
		Status   string                           `json:"status"`
		Backfill map[string]service.ChannelState `json:"backfill"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok"}
		if s.scanner != nil {
			resp.Backfill = s.scanner.ChannelStates()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics.GetAllMetrics()); err != nil {
			s.logger.WithError(err).Warn("Failed to write metrics response")
		}
	}
}
