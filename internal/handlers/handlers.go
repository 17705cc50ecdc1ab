package handlers

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

const serviceName = "checkout-service"

// ReadinessCheck pings one backing dependency for /ready.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handlers holds all HTTP handlers for the checkout service.
type Handlers struct {
	orderService *service.OrderService
	config       *config.Config
	checks       []ReadinessCheck
	logger       *logging.LoggerV2
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	orderService *service.OrderService,
	cfg *config.Config,
	checks ...ReadinessCheck,
) *Handlers {
	return &Handlers{
		orderService: orderService,
		config:       cfg,
		checks:       checks,
		logger:       logging.NewLoggerV2("handlers"),
	}
}
