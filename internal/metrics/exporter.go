package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// DefaultListen is the exporter address when none is configured
const DefaultListen = ":9464"

// Exporter handles the HTTP server for Prometheus metrics
type Exporter struct {
	collector *Collector
	logger    *logger.Logger
	listen    string
	path      string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewExporter creates a new Prometheus exporter
func NewExporter(collector *Collector, listen, path string, log *logger.Logger) *Exporter {
	if path == "" {
		path = "/metrics"
	}
	if listen == "" {
		listen = DefaultListen
	}

	return &Exporter{
		collector: collector,
		logger:    log,
		listen:    listen,
		path:      path,
	}
}

// Handler returns the mux serving metrics and health
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(e.path, promhttp.HandlerFor(
		e.collector.GetRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Timeout:           10 * time.Second,
			ErrorLog:          zap.NewStdLog(e.logger.Logger),
		},
	))
	mux.HandleFunc("/health", e.healthHandler)

	return mux
}

// Start binds the listen address and serves in the background
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		return errors.New("exporter already started")
	}

	ln, err := net.Listen("tcp", e.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.listen, err)
	}

	e.listener = ln
	e.server = &http.Server{
		Handler:      e.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := e.server
	go func() {
		e.logger.Info("Starting Prometheus exporter",
			zap.String("addr", ln.Addr().String()),
			zap.String("path", e.path))

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("Prometheus exporter error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Prometheus HTTP server
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	server := e.server
	e.server = nil
	e.listener = nil
	e.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		e.logger.Error("Failed to shutdown Prometheus exporter gracefully", zap.Error(err))
		return err
	}

	e.logger.Info("Prometheus exporter stopped")
	return nil
}

// Addr returns the bound address, empty before Start
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// GetURL returns the URL of the metrics endpoint
func (e *Exporter) GetURL() string {
	addr := e.Addr()
	if addr == "" {
		addr = e.listen
	}
	return fmt.Sprintf("http://%s%s", addr, e.path)
}

// healthHandler handles health check requests
func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
