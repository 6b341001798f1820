// Package server exposes the correction service over HTTP.
//
// Routes:
//
//   - POST /check: annotate the text, returns an array of annotations.
//   - POST /v1/corrections: annotate or rewrite, returns annotations or
//     replace operations.
//   - POST /v1/corrections/apply: rewrite guided by annotations, returns the
//     corrected text.
//   - GET /v1/live: WebSocket for incremental checking from an editor.
//
// Every failure is answered with {"error": {"code": ..., "message": ...}}.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/observe"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Corrections is the part of [correction.Service] the server calls.
type Corrections interface {
	Check(ctx context.Context, req correction.Request) (*correction.Result, error)
	ApplyCorrections(ctx context.Context, text string, annotations []corrector.Annotation, marker string) (string, error)
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithRequestTimeout bounds the handling of one request or live frame.
// Default: 60s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithMaxBodyBytes caps request bodies and live frames. Default: 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLiveOrigins sets the origin patterns accepted by the live WebSocket.
// Empty accepts same-origin connections only.
func WithLiveOrigins(patterns ...string) Option {
	return func(s *Server) {
		s.liveOrigins = patterns
	}
}

// Server serves the correction API. It is safe for concurrent use.
type Server struct {
	svc            Corrections
	requestTimeout time.Duration
	maxBodyBytes   int64
	metrics        *observe.Metrics
	liveOrigins    []string
}

// New creates a [Server] backed by svc.
func New(svc Corrections, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		requestTimeout: defaultRequestTimeout,
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds the correction routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /check", s.handleCheck)
	mux.HandleFunc("POST /v1/corrections", s.handleCorrections)
	mux.HandleFunc("POST /v1/corrections/apply", s.handleApply)
	mux.HandleFunc("GET /v1/live", s.handleLive)
}
