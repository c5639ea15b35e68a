package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"billing-lifecycle/config"
	"billing-lifecycle/internal/handler"
	"billing-lifecycle/internal/middleware"
	"billing-lifecycle/internal/redis"
	"billing-lifecycle/internal/transport/httpdto"
	"billing-lifecycle/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Domains  *handler.DomainHandler
	Orders   *handler.OrderHandler
	Invoices *handler.InvoiceHandler
	Rates    *handler.RateHandler
}

// Pinger is satisfied by repository.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Infra holds what the ambient routes need. Limiter may be nil.
type Infra struct {
	DB      Pinger
	Metrics prometheus.Gatherer
	Limiter *redis.RateLimiter
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, infra Infra) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if infra.DB == nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("database not initialized", "UNHEALTHY"))
			return
		}
		if err := infra.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if infra.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(infra.Metrics, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/v1", middleware.RateLimitMiddleware(infra.Limiter, s.logger))

	domains := v1.Group("/domains")
	{
		domains.POST("/registrations", handlers.Domains.Register)
		domains.POST("/:id/renewals", handlers.Domains.Renew)
		domains.POST("/:id/transitions", handlers.Domains.Transition)
	}

	orders := v1.Group("/orders")
	{
		orders.POST("", handlers.Orders.Place)
		orders.POST("/:id/provision", handlers.Orders.Provision)
		orders.POST("/:id/transitions", handlers.Orders.Transition)
	}

	invoices := v1.Group("/invoices")
	{
		invoices.POST("/:id/payments", handlers.Invoices.RecordPayment)
		invoices.GET("/archive/:number", handlers.Invoices.ArchiveLink)
	}

	rates := v1.Group("/rates")
	{
		rates.GET("/convert", handlers.Rates.Convert)
		rates.GET("/:base/:target", handlers.Rates.Get)
		rates.POST("", handlers.Rates.Upsert)
		rates.PUT("/:id", handlers.Rates.Upsert)
	}
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down within 5 seconds")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
