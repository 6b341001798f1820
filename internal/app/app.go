// Package app wires the textfix subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the corrector, the
// correction service and the HTTP routes, Run serves until the context ends,
// and Shutdown drains connections and runs the registered closers in order.
//
// For testing, inject a corrector via [WithCorrector]. When no corrector is
// injected, New builds the LLM corrector from the configured providers.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MrWong99/textfix/internal/anchor"
	"github.com/MrWong99/textfix/internal/config"
	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/corrector/llmcorrect"
	"github.com/MrWong99/textfix/internal/health"
	"github.com/MrWong99/textfix/internal/mcptool"
	"github.com/MrWong99/textfix/internal/observe"
	"github.com/MrWong99/textfix/internal/resilience"
	"github.com/MrWong99/textfix/internal/server"
	"github.com/MrWong99/textfix/pkg/provider/llm"
)

// NamedProvider is an LLM provider together with its configured name.
type NamedProvider struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the LLM backends built by main.go via the config registry.
// A zero LLM means no provider is configured.
type Providers struct {
	LLM       NamedProvider
	Fallbacks []NamedProvider
}

// App owns all subsystem lifetimes of the correction service.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	version        string

	// Subsystems, initialised in New.
	corrector corrector.Corrector
	fallback  *resilience.LLMFallback
	svc       *correction.Service
	handler   http.Handler
	srv       *http.Server

	// baseCancel ends the contexts of hijacked live connections, which
	// http.Server.Shutdown does not track.
	baseCancel context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCorrector injects a corrector instead of building one from providers.
func WithCorrector(c corrector.Corrector) Option {
	return func(a *App) { a.corrector = c }
}

// WithMetrics sets the metrics the subsystems record to. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets [App.Reload] change the log level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCloser registers fn to run during Shutdown after the HTTP server has
// stopped.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers may be nil
// when a corrector is injected with [WithCorrector].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.corrector == nil {
		if err := a.initCorrector(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.initService(); err != nil {
		return nil, err
	}
	a.initHTTP()

	slog.Info("app initialised",
		"markers", len(cfg.Guard.Markers),
		"offset_units", cfg.Diff.OffsetUnits,
		"anchor", cfg.Annotations.Anchor,
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

// initCorrector wraps the configured providers in a fallback group and puts
// the LLM corrector on top.
func (a *App) initCorrector(_ context.Context) error {
	if a.providers == nil || a.providers.LLM.Provider == nil {
		return errors.New("app: no llm provider configured")
	}

	fb := resilience.NewLLMFallback(a.providers.LLM.Provider, a.providers.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: a.breakerChanged,
		},
	})
	for _, p := range a.providers.Fallbacks {
		fb.AddFallback(p.Name, p.Provider)
	}
	a.fallback = fb

	cc := a.cfg.Corrector
	opts := []llmcorrect.Option{llmcorrect.WithTemperature(cc.Temperature)}
	if cc.MaxTokens > 0 {
		opts = append(opts, llmcorrect.WithMaxTokens(cc.MaxTokens))
	}
	if cc.Retries != nil {
		opts = append(opts, llmcorrect.WithRetries(*cc.Retries, cc.RetryDelay))
	}
	if cc.Timeout > 0 {
		opts = append(opts, llmcorrect.WithTimeout(cc.Timeout))
	}
	a.corrector = llmcorrect.New(fb, opts...)

	slog.Info("corrector ready", "primary", a.providers.LLM.Name, "fallbacks", len(a.providers.Fallbacks))
	return nil
}

// breakerChanged runs under the breaker lock and must stay non-blocking.
func (a *App) breakerChanged(name string, from, to resilience.State) {
	a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	slog.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
}

func (a *App) initService() error {
	opts := []correction.Option{
		correction.WithMarkers(a.cfg.Guard.Markers...),
		correction.WithMaxEditDistance(a.cfg.Diff.MaxEditDistance),
		correction.WithOffsetUnits(a.cfg.Diff.OffsetUnits),
		correction.WithMetrics(a.metrics),
	}
	if a.cfg.Annotations.Anchor {
		opts = append(opts, correction.WithAnchorer(
			anchor.New(anchor.WithFuzzyThreshold(a.cfg.Annotations.FuzzyThreshold)),
		))
	}
	svc, err := correction.New(a.corrector, opts...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.svc = svc
	return nil
}

func (a *App) initHTTP() {
	sc := a.cfg.Server
	mux := http.NewServeMux()

	server.New(a.svc,
		server.WithRequestTimeout(sc.RequestTimeout),
		server.WithMaxBodyBytes(sc.MaxBodyBytes),
		server.WithMetrics(a.metrics),
		server.WithLiveOrigins(originHosts(sc.CORSOrigins)...),
	).Register(mux)

	var checkers []health.Checker
	if a.fallback != nil {
		checkers = append(checkers,
			health.Checker{Name: "corrector", Check: health.BreakerCheck(a.breakers, false)},
			health.Checker{Name: "providers", Check: health.BreakerCheck(a.breakers, true), Optional: true},
		)
	}
	health.New(checkers...).Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	if a.cfg.MCP.Enabled {
		mux.Handle(a.cfg.MCP.Path, mcptool.Handler(mcptool.NewServer(a.svc, a.metrics, a.version)))
		slog.Info("mcp endpoint enabled", "path", a.cfg.MCP.Path)
	}

	a.handler = observe.Middleware(a.metrics)(server.CORS(sc.CORSOrigins)(mux))
}

// breakers reports the circuit state of every configured provider.
func (a *App) breakers() []health.Breaker {
	status := a.fallback.Status()
	out := make([]health.Breaker, len(status))
	for i, s := range status {
		out[i] = health.Breaker{Name: s.Name, Open: s.State == resilience.StateOpen}
	}
	return out
}

// originHosts turns CORS origins into websocket origin patterns, which match
// on host only.
func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the correction service.
func (a *App) Service() *correction.Service { return a.svc }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled or
// the server fails. A cancelled ctx is not an error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.baseCancel = cancel
	a.srv = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	tlsCfg := a.cfg.Server.TLS
	if tlsCfg != nil {
		a.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- a.srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
			return
		}
		errCh <- a.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. It is
// meant as the [config.Watcher] callback.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(Level(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MarkersChanged {
		if err := a.svc.SetMarkers(d.NewMarkers...); err != nil {
			slog.Error("failed to apply new markers, keeping the old ones", "err", err)
		} else {
			slog.Info("protected markers changed", "markers", d.NewMarkers)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Level converts a config log level to its slog counterpart.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and then runs the closers in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.srv != nil {
			if err := a.srv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
				shutdownErr = err
			}
		}
		if a.baseCancel != nil {
			a.baseCancel()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
