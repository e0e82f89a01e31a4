package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolbridge/toolbridge/internal/port/inbound"
)

const defaultKeepAlive = 30 * time.Second

// Transport is the inbound adapter that serves the relay's HTTP surface.
type Transport struct {
	relay     inbound.Relay
	server    *http.Server
	addr      string
	keepAlive time.Duration
	version   string
	logger    *slog.Logger
	metrics   *Metrics

	mu       sync.Mutex
	listener net.Listener
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "0.0.0.0:8765".
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithKeepAlive sets the push-channel heartbeat interval.
func WithKeepAlive(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.keepAlive = d
		}
	}
}

// WithVersion sets the version string reported by /health.
func WithVersion(v string) Option {
	return func(t *Transport) {
		t.version = v
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates an HTTP transport serving the given relay.
func NewTransport(relay inbound.Relay, opts ...Option) *Transport {
	t := &Transport{
		relay:     relay,
		addr:      "0.0.0.0:8765",
		keepAlive: defaultKeepAlive,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg, t.relay)

	rh := &relayHandler{
		relay:     t.relay,
		logger:    t.logger,
		keepAlive: t.keepAlive,
		metrics:   t.metrics,
	}
	health := NewHealthChecker(t.relay, t.version)

	mux := http.NewServeMux()
	mux.HandleFunc("/events", rh.handleEvents)
	mux.HandleFunc("/message", rh.handleMessage)
	mux.HandleFunc("/sessions", rh.handleSessions)
	mux.Handle("/health", health.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var handler http.Handler = mux
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: handler,
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound listen address once Start has opened the listener,
// and the configured address before that. Useful with a ":0" port.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// shutdown closes all push channels so streaming handlers return, then
// shuts the server down gracefully.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.relay.Shutdown()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
