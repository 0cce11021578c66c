// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves the metrics, probes and run report of a page
// run over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the page has reached Ready.
type ReadinessChecker func() bool

// Registration adds a package's collectors to a registry. The bridge, plugin
// and lifecycle packages each export one as RegisterMetrics.
type Registration func(prometheus.Registerer) error

// Report is the body of /status.
type Report struct {
	Phase   string    `json:"phase"`
	Message string    `json:"message,omitempty"`
	Failure string    `json:"failure,omitempty"`
	Banners []string  `json:"banners,omitempty"`
	Updated time.Time `json:"updated,omitzero"`
}

// ReportFunc produces the current run report.
type ReportFunc func() Report

// Server exposes /metrics, the /healthz probes and /status.
type Server struct {
	addr     string
	registry *prometheus.Registry
	isReady  ReadinessChecker

	mu         sync.Mutex
	report     ReportFunc
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server listening on addr ("127.0.0.1:9100", ":0").
// Each registration runs against a private registry that also carries the
// Go runtime and process collectors.
func NewServer(addr string, ready ReadinessChecker, regs ...Registration) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	for i, reg := range regs {
		if err := reg(registry); err != nil {
			return nil, oops.In("observability").With("registration", i).Wrapf(err, "register metrics")
		}
	}

	return &Server{
		addr:     addr,
		registry: registry,
		isReady:  ready,
	}, nil
}

// Registry returns the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// SetReportFunc sets what /status serves.
func (s *Server) SetReportFunc(fn ReportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = fn
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start begins serving. The returned channel receives a serve error, and is
// closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.In("observability").Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.In("observability").With("addr", s.addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.In("observability").With("operation", "shutdown").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.isReady == nil || s.isReady() {
		writeText(w, http.StatusOK, "ok")
		return
	}
	writeText(w, http.StatusServiceUnavailable, "not ready")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	fn := s.report
	s.mu.Unlock()
	if fn == nil {
		writeText(w, http.StatusNotFound, "no run report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(fn())
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(body + "\n"))
}
