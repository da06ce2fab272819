package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealroom/config"
	"dealroom/internal/handler"
	"dealroom/internal/middleware"
	"dealroom/internal/redis"
	"dealroom/internal/services"
	"dealroom/internal/websocket"
	"dealroom/pkg/logger"

	"github.com/gin-gonic/gin"
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
	Negotiation *handler.NegotiationHandler
	Channel     *handler.ChannelHandler
	Health      *handler.HealthHandler
	WebSocket   *websocket.Handler
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

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetupRoutes mounts every endpoint. limiter may be nil when Redis is not
// configured.
func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.MetricsMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", handlers.Health.Ping)
	s.engine.GET("/health", handlers.Health.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The upgrade authenticates itself: browsers cannot send headers on it.
	s.engine.GET("/v1/ws", middleware.WebSocketRateLimitMiddleware(limiter, s.logger), handlers.WebSocket.Connect)

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))
	{
		v1.POST("/transactions/:id/negotiation", handlers.Negotiation.Open)
		v1.GET("/transactions/:id/messages", handlers.Channel.History)
		v1.POST("/transactions/:id/messages", handlers.Channel.Send)
		v1.POST("/transactions/:id/read", handlers.Channel.MarkRead)
		v1.GET("/unread", handlers.Channel.Unread)

		v1.GET("/negotiations/:id", handlers.Negotiation.Get)
		v1.POST("/negotiations/:id/offers", handlers.Negotiation.Counter)
		v1.POST("/negotiations/:id/accept", handlers.Negotiation.Accept)
		v1.POST("/negotiations/:id/reject", handlers.Negotiation.Reject)
		v1.POST("/negotiations/:id/cancel", handlers.Negotiation.Cancel)
		v1.GET("/negotiations/:id/transcript", handlers.Negotiation.Transcript)
	}
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully. The
// returned error is nil on a clean shutdown.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		if s.logger != nil {
			s.logger.Warnf("Received %s, shutting down within 5 seconds", sig)
		}
	}

	if s.logger != nil {
		s.logger.Infof("Draining connections")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
