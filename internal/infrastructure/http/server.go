package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/elimupay/billing/internal/adapter/handler/http"
	"github.com/elimupay/billing/internal/config"
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/middleware/auth"
	"github.com/elimupay/billing/internal/usecase"
)

// Services bundles the usecases the HTTP surface exposes
type Services struct {
	Intents        *usecase.IntentService
	Webhooks       *usecase.WebhookService
	Refunds        *usecase.RefundService
	Reconciliation *usecase.ReconciliationService
	Schedules      repository.DunningScheduleRepository
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	services *Services
}

func NewServer(cfg *config.Config, logger *zap.Logger, services *Services) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	return &Server{
		config:   cfg,
		logger:   logger,
		echo:     e,
		services: services,
	}
}

func (s *Server) Start() error {
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "billing",
		})
	})

	intentHandler := handlers.NewIntentHandler(s.services.Intents, s.logger)
	webhookHandler := handlers.NewWebhookHandler(s.services.Webhooks, s.logger)
	adminHandler := handlers.NewAdminHandler(s.services.Refunds, s.services.Reconciliation, s.services.Schedules, s.logger)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
	}

	// Provider callbacks are authenticated by payload correlation, not
	// JWT; they live outside the API group
	s.echo.POST("/webhooks/:provider", webhookHandler.HandleWebhook)

	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	v1.POST("/intents", intentHandler.CreateIntent)
	v1.GET("/intents/:id", intentHandler.GetIntent)
	v1.DELETE("/intents/:id", intentHandler.CancelIntent)

	v1.POST("/refunds", adminHandler.CreateRefund)
	v1.POST("/internal/reconcile", adminHandler.RunReconciliation)

	v1.GET("/dunning-schedule", adminHandler.GetDunningSchedule)
	v1.PUT("/dunning-schedule", adminHandler.PutDunningSchedule)
}
