package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server exposes /metrics and /health over HTTP.
type Server struct {
	server    *http.Server
	listener  net.Listener
	startTime time.Time
	done      chan struct{}
}

// NewServer binds addr and returns a server ready to Start.
func NewServer(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:  ln,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background.
func (s *Server) Start() {
	log.Info().Str("addr", s.Addr()).Msg("Starting metrics server")
	go func() {
		defer close(s.done)
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Shutting down metrics server")
	err := s.server.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}
