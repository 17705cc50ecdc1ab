package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *logging.LoggerV2
}

func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), metrics.GinMiddleware())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logging.NewLoggerV2("server"),
	}

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	requireAuth := middleware.RequireAuth(s.config.Auth.JWTSecret)
	requireAdmin := middleware.RequireAdmin()

	api := s.router.Group("/api")
	{
		// Called by the gateway and the storefront's return pages; the
		// payload signature is the authentication.
		api.POST("/payments/payu/callback", s.handlers.PaymentCallback)
		api.POST("/orders/verify-payment", s.handlers.PaymentCallback)

		orders := api.Group("/orders", requireAuth)
		{
			orders.POST("", s.handlers.CreateOrder)
			orders.GET("/myorders", s.handlers.GetMyOrders)
			orders.GET("/:id", s.handlers.GetOrder)

			orders.GET("", requireAdmin, s.handlers.ListOrders)
			orders.GET("/user/:userId", requireAdmin, s.handlers.GetUserOrders)
			orders.PUT("/:id/status", requireAdmin, s.handlers.UpdateOrderStatus)
		}

		api.GET("/notifications", requireAuth, s.handlers.ListNotifications)
	}
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving HTTP until Shutdown. It returns http.ErrServerClosed
// after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info("Starting server", logging.Fields{"addr": s.http.Addr})
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.http.Shutdown(ctx)
}
