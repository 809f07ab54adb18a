package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/bilal/regionpulse/internal/config"
	"github.com/bilal/regionpulse/internal/metrics"
	"github.com/bilal/regionpulse/internal/publisher"
	"github.com/bilal/regionpulse/internal/telemetry"
)

// ReportPublisher receives every successfully computed report.
type ReportPublisher interface {
	Publish(ev publisher.ReportEvent)
}

// Server answers aggregation requests against a dataset loaded at start-up.
// The dataset is never written after New, so handlers read it without locks.
type Server struct {
	cfg              config.ServerConfig
	dataset          *telemetry.Dataset
	regionCount      int
	defaultThreshold float64

	metrics   *metrics.Metrics
	publisher ReportPublisher

	running int32
	httpSrv *http.Server
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithPublisher(p ReportPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

func New(cfg *config.Config, ds *telemetry.Dataset, opts ...Option) *Server {
	s := &Server{
		cfg:              cfg.Server,
		dataset:          ds,
		regionCount:      len(ds.Regions()),
		defaultThreshold: cfg.Aggregator.DefaultThresholdMs,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) SetRunning(ok bool) {
	if ok {
		atomic.StoreInt32(&s.running, 1)
	} else {
		atomic.StoreInt32(&s.running, 0)
	}
}

func (s *Server) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleCompute).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return wrap(r)
}

// wrap applies the middleware chain. CORS sits outside recovery so that a
// recovered 500 still carries the allow-origin header.
func wrap(h http.Handler) http.Handler {
	h = recoverer(h)
	h = newCORS().Handler(h)
	h = accessLog(h)
	h = requestID(h)
	return h
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	return ignoreClosed(s.httpSrv.ListenAndServe())
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	log.Info().Str("addr", l.Addr().String()).Msg("http server listening")
	return ignoreClosed(s.httpSrv.Serve(l))
}

// Shutdown marks the server as not running and drains open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetRunning(false)
	return s.httpSrv.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
