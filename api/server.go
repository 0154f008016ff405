package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/oss"
	"github.com/itsneelabh/infergate/telemetry"
)

// TaskService is the executor surface the task endpoints need.
type TaskService interface {
	Submit(ctx context.Context, model string, message *core.Message) (*core.Task, error)
	Get(ctx context.Context, id string) (*core.Task, error)
	Result(ctx context.Context, id string, timeout time.Duration) (*core.Task, error)
}

// ObjectStore is the storage surface the file endpoints need.
type ObjectStore interface {
	GetObject(ctx context.Context, name string) (io.ReadCloser, *oss.ObjectMeta, error)
	PutObject(ctx context.Context, body io.Reader, meta oss.ObjectMeta) (string, error)
}

// Server is the gateway HTTP server.
type Server struct {
	addr   string
	config core.HTTPConfig
	tasks  TaskService
	models core.ModelResolver
	store  ObjectStore // nil disables the file endpoints
	logger core.Logger
	router *gin.Engine
}

// NewServer builds the router. The store may be nil when object
// storage is not configured; the file routes are then not registered.
func NewServer(addr string, config core.HTTPConfig, tasks TaskService, models core.ModelResolver, store ObjectStore, logger core.Logger) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	} else if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("api")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		addr:   addr,
		config: config,
		tasks:  tasks,
		models: models,
		store:  store,
		logger: logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	chat := s.router.Group("/chat")
	{
		chat.POST("/completion", s.chatCompletion)
		chat.POST("/stream", s.chatStream)
	}

	task := s.router.Group("/task")
	{
		task.POST("/create", s.taskCreate)
		task.GET("/query", s.taskQuery)
		task.GET("/result", s.taskResult)
	}

	if s.store != nil {
		file := s.router.Group("/file")
		{
			file.POST("/upload", s.fileUpload)
			file.GET("/download/:name", s.fileDownload)
		}
	}
}

// Handler returns the router wrapped with request tracing, for mounting
// on an http.Server.
func (s *Server) Handler(serviceName string) http.Handler {
	return telemetry.TracingMiddleware(serviceName)(s.router)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, serviceName string) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(serviceName),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("HTTP server listening", map[string]interface{}{
		"operation": "server_start",
		"address":   s.addr,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server", map[string]interface{}{
			"operation": "server_shutdown",
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// loggerMiddleware logs one line per request; health probes are
// skipped to keep the log readable.
func loggerMiddleware(logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.InfoWithContext(c.Request.Context(), "HTTP request", map[string]interface{}{
			"operation":   "http_request",
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
