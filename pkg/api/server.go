// Package api serves the supervisor, the detection pipeline and the stored
// detections over HTTP, and exposes the agent tools over MCP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	"github.com/Protocol-Lattice/pcb-agent/pkg/concurrent"
	"github.com/Protocol-Lattice/pcb-agent/pkg/metrics"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

// Supervisor is the part of agent.Supervisor the handlers call.
type Supervisor interface {
	Chat(ctx context.Context, text string) (string, error)
	AnalyzeImage(ctx context.Context, path string) (string, error)
}

// Analyzer runs the detection pipeline on a local image.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (vision.Result, error)
}

// Records persists analyzed boards and lists them back.
type Records interface {
	Persist(ctx context.Context, main store.MainUpload, crops []store.CropUpload) (store.PersistedBundle, error)
	ListDetections(ctx context.Context) ([]store.DetectionListing, error)
}

// Options configure a Server.
type Options struct {
	Supervisor Supervisor
	Pipeline   Analyzer
	Records    Records
	Metrics    *metrics.Metrics
	// Tools are exposed on /mcp when non-empty.
	Tools         []agent.Tool
	UploadDir     string
	OutputDir     string
	MaxConcurrent int
	Logger        *slog.Logger
}

// Server owns the echo instance and its handlers.
type Server struct {
	Echo *echo.Echo

	supervisor Supervisor
	pipeline   Analyzer
	records    Records
	metrics    *metrics.Metrics
	detects    *concurrent.WorkerPool
	uploadDir  string
	outputDir  string
	logger     *slog.Logger
}

// New builds the server and registers every route.
func New(opts Options) (*Server, error) {
	if opts.Supervisor == nil {
		return nil, errors.New("api: supervisor is required")
	}
	if opts.Pipeline == nil || opts.Records == nil {
		return nil, errors.New("api: detection pipeline and records store are required")
	}
	m := opts.Metrics
	if m == nil {
		var err error
		if m, err = metrics.New(); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Echo:       echo.New(),
		supervisor: opts.Supervisor,
		pipeline:   opts.Pipeline,
		records:    opts.Records,
		metrics:    m,
		detects:    concurrent.NewWorkerPool(opts.MaxConcurrent),
		uploadDir:  valueOr(opts.UploadDir, "uploads"),
		outputDir:  valueOr(opts.OutputDir, "processed_images"),
		logger:     logger.With("component", "api"),
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestLogger)

	s.Echo.GET("/", s.root)
	s.Echo.GET("/health", s.health)
	s.Echo.POST("/chat", s.chat)
	s.Echo.POST("/analyze-image", s.analyzeImage)
	s.Echo.POST("/detect-image", s.detectImage)
	s.Echo.GET("/detections", s.listDetections)
	s.Echo.GET("/metrics", echo.WrapHandler(m.Handler()))

	if len(opts.Tools) > 0 {
		mcpSrv, err := NewMCPServer(opts.Tools, logger)
		if err != nil {
			return nil, err
		}
		s.Echo.Any("/mcp", echo.WrapHandler(mcpserver.NewStreamableHTTPServer(mcpSrv)))
	}
	return s, nil
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// requestLogger logs each request and records it in the HTTP metrics.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		status := c.Response().Status
		elapsed := time.Since(start)
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request().Method, path, status, elapsed)
		s.logger.Info("request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
		return nil
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
