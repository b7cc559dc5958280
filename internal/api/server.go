// Package api serves the monitor status over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/internal/runner"
	"github.com/wemix/headwatch/pkg/logger"
)

// DefaultListen is the API address when none is configured
const DefaultListen = ":8080"

// StatusSource is implemented by runner.Runner
type StatusSource interface {
	Status() runner.Status
	Engine() *escalation.Engine
}

// Options configures the API server
type Options struct {
	Listen      string
	CORSOrigins []string
	// JWTSecret enables HS256 bearer authentication on /api/v1 when set
	JWTSecret string
	Version   string
}

// Server represents the API server
type Server struct {
	router *gin.Engine
	source StatusSource
	logger *logger.Logger
	opts   Options
	clock  func() time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new API server
func NewServer(source StatusSource, opts Options, log *logger.Logger) *Server {
	if opts.Listen == "" {
		opts.Listen = DefaultListen
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(log))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.CORSOrigins) == 0 || contains(opts.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		source: source,
		logger: log,
		opts:   opts,
		clock:  time.Now,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	v1 := s.router.Group("/api/v1")
	if s.opts.JWTSecret != "" {
		v1.Use(NewAuthMiddleware(s.opts.JWTSecret, s.logger).Authenticate())
	}
	v1.GET("/status", s.getStatus)
	v1.GET("/thresholds", s.getThresholds)
	v1.GET("/version", s.getVersion)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Listen, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := s.server
	go func() {
		s.logger.Info("Starting API server", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown API server gracefully", zap.Error(err))
		return err
	}

	s.logger.Info("API server stopped")
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// healthHandler handles health check requests
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.clock().Unix(),
	})
}

// readyHandler reports ready once a cycle has completed
func (s *Server) readyHandler(c *gin.Context) {
	status := s.source.Status()
	if status.LastResult == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "no monitor cycle has completed yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": s.clock().Unix(),
	})
}

// getStatus returns the escalation state as of the last cycle
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, buildStatus(s.source.Status(), s.source.Engine(), s.clock()))
}

// getThresholds returns the configured thresholds in firing order
func (s *Server) getThresholds(c *gin.Context) {
	thresholds := s.source.Engine().Thresholds()
	c.JSON(http.StatusOK, gin.H{
		"thresholds": thresholds,
		"count":      len(thresholds),
	})
}

// getVersion returns version information
func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.opts.Version,
		"api":     "v1",
	})
}

// ginLogger creates a Gin logging middleware
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("API request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
