// Package http is the HTTP adapter over the processing, email and export
// services. Handlers stay thin; every decision lives in the services.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxUploadMB  int64
	Debug        bool
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates the router with middleware and all routes registered.
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	s := &Server{
		config:   config,
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())
	router.Use(corsMiddleware())
	if config.MaxUploadMB > 0 {
		router.MaxMultipartMemory = config.MaxUploadMB << 20
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/upload", s.handlers.Upload)
		api.POST("/upload-batch", s.handlers.UploadBatch)
		api.GET("/batch/:batch_id", s.handlers.BatchStatus)

		api.GET("/pending", s.handlers.ListPending)
		api.GET("/pending/:id", s.handlers.GetPending)
		api.PUT("/pending/:id", s.handlers.UpdatePending)
		api.DELETE("/pending/:id", s.handlers.DeletePending)

		api.POST("/validate/:id", s.handlers.Validate)
		api.POST("/validate-batch", s.handlers.ValidateBatch)
		api.POST("/check-duplicate", s.handlers.CheckDuplicate)

		api.GET("/invoices", s.handlers.ListInvoices)
		api.GET("/invoices/export", s.handlers.ExportInvoices)
		api.GET("/suppliers", s.handlers.ListSuppliers)
		api.GET("/companies", s.handlers.ListCompanies)
		api.GET("/stats", s.handlers.Stats)

		email := api.Group("/email")
		{
			email.POST("/connect", s.handlers.EmailConnect)
			email.GET("/accounts", s.handlers.EmailAccounts)
			email.DELETE("/accounts/:email", s.handlers.DeleteEmailAccount)
			email.GET("/:session/mailboxes", s.handlers.EmailMailboxes)
			email.POST("/:session/import", s.handlers.EmailImport)
			email.DELETE("/:session", s.handlers.EmailDisconnect)
		}
	}
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
