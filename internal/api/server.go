package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/bridge"
)

// Server exposes the bridge's merged snapshot over HTTP for local
// consumers, plus health and Prometheus metrics endpoints.
type Server struct {
	bridge *bridge.Bridge
	server *http.Server
}

func NewServer(b *bridge.Bridge, addr string) *Server {
	s := &Server{
		bridge: b,
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", s.healthHandler)
	mux.HandleFunc("/api/v1/snapshot", s.snapshotHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
