// Package api provides the HTTP surface of the reminder engine.
//
// It exposes the scheduling and manual lifecycle operations plus the read
// views backing the Scheduled and History tabs, and serves Prometheus
// metrics on /metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adminsuite/reminderd/internal/reminder"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds API server configuration.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server serves the reminder engine HTTP API.
type Server struct {
	service *reminder.Service
	httpSrv *http.Server
}

// NewServer builds the router and HTTP server around a reminder service.
func NewServer(service *reminder.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{service: service}

	r := mux.NewRouter()
	r.HandleFunc("/reminders/schedule", s.scheduleHandler).Methods(http.MethodPost)
	r.HandleFunc("/reminders/test-send", s.testSendHandler).Methods(http.MethodPost)
	r.HandleFunc("/reminders/log", s.listLogHandler).Methods(http.MethodGet)
	r.HandleFunc("/reminders/{id}/reschedule", s.rescheduleHandler).Methods(http.MethodPost)
	r.HandleFunc("/reminders/{id}/cancel", s.cancelHandler).Methods(http.MethodPost)
	r.HandleFunc("/reminders/{id}/send", s.sendNowHandler).Methods(http.MethodPost)
	r.HandleFunc("/reminders", s.listRemindersHandler).Methods(http.MethodGet)
	r.HandleFunc("/policies/{kind}", s.getPolicyHandler).Methods(http.MethodGet)
	r.HandleFunc("/policies/{kind}", s.updatePolicyHandler).Methods(http.MethodPut)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
