package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/api/handlers"
	"digefx-monitor-go/internal/api/middleware"
	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/services/lifecycle"
)

// Server is the HTTP control surface over the lifecycle manager.
type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler     *handlers.HealthHandler
	backgroundHandler *handlers.BackgroundHandler
	systemHandler     *handlers.SystemHandler
}

func NewServer(cfg *config.Config, manager *lifecycle.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	s := &Server{
		config:            cfg,
		router:            router,
		healthHandler:     handlers.NewHealthHandler(cfg.MonitorID, cfg.Version),
		backgroundHandler: handlers.NewBackgroundHandler(manager),
		systemHandler:     handlers.NewSystemHandler(cfg.MonitorID, manager),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting monitor API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping monitor API")
	return s.server.Shutdown(ctx)
}
