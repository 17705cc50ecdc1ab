package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payu"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// OrderService handles checkout, gateway reconciliation and order reads.
type OrderService struct {
	orderRepo      interfaces.OrderRepository
	orderCache     repository.OrderCache
	gateway        *payu.Gateway
	userClient     interfaces.UserDirectory
	notifications  interfaces.NotificationStore
	eventPublisher interfaces.OrderEventPublisher
	effects        *SideEffects
	stateMachine   *StateMachine
	pricing        PricingPolicy
	config         *config.Config
	logger         *logging.LoggerV2
	now            func() time.Time
}

// NewOrderService creates a new order service. orderCache and eventPublisher
// may be nil.
func NewOrderService(
	orderRepo interfaces.OrderRepository,
	orderCache repository.OrderCache,
	gateway *payu.Gateway,
	userClient interfaces.UserDirectory,
	mailer interfaces.EmailDispatcher,
	notifications interfaces.NotificationStore,
	eventPublisher interfaces.OrderEventPublisher,
	cfg *config.Config,
) *OrderService {
	if !cfg.Features.EnableOrderEvents {
		eventPublisher = nil
	}
	if !cfg.Features.EnableOrderCaching {
		orderCache = nil
	}

	effects := NewSideEffects(mailer, notifications, userClient, cfg.Email.SendTimeout)

	return &OrderService{
		orderRepo:      orderRepo,
		orderCache:     orderCache,
		gateway:        gateway,
		userClient:     userClient,
		notifications:  notifications,
		eventPublisher: eventPublisher,
		effects:        effects,
		stateMachine:   NewStateMachine(orderRepo, effects, eventPublisher),
		pricing:        NewPricingPolicy(cfg.Pricing),
		config:         cfg,
		logger:         logging.NewLoggerV2("order-service"),
		now:            time.Now,
	}
}

// CreateOrder validates a checkout, prices it server-side and persists it
// together with clearing the buyer's cart. Gateway orders also get a signed
// payment request.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req *models.CreateOrderRequest) (*models.OrderCreationResult, error) {
	if userID == "" {
		return nil, errors.ErrUnauthorized
	}
	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("Creating order", logging.Fields{
		"user_id":        userID,
		"item_count":     len(req.Items),
		"payment_method": req.PaymentMethod,
	})

	totals := s.pricing.Calculate(req.Items)
	if mismatched := totals.mismatchedFields(req); len(mismatched) > 0 {
		metrics.DeclaredTotalMismatches.Inc()
		s.logger.Warn("Declared totals differ from computed totals", logging.Fields{
			"user_id":  userID,
			"fields":   mismatched,
			"computed": totals.TotalPrice.StringFixed(2),
		})
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           append([]models.OrderItem(nil), req.Items...),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      totals.ItemsPrice,
		TaxPrice:        totals.TaxPrice,
		ShippingPrice:   totals.ShippingPrice,
		TotalPrice:      totals.TotalPrice,
		Status:          models.OrderStatusReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result := &models.OrderCreationResult{Order: order}

	if order.PaymentMethod.Kind() == models.PaymentKindGateway {
		order.PaymentResult = &models.PaymentResult{
			TransactionID: s.gateway.NewTxnID(),
			GatewayStatus: models.GatewayStatusPending,
			UpdateTime:    now,
		}

		payment, err := s.gateway.BuildSignedRequest(order, s.buyer(ctx, userID))
		if err != nil {
			s.logger.Error("Failed to build payment request", logging.Fields{
				"user_id": userID,
				"error":   err.Error(),
			})
			return nil, err
		}
		result.Payment = payment
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod.Kind())).Inc()
	s.cacheOrder(ctx, order)

	if s.eventPublisher != nil {
		if err := s.eventPublisher.PublishOrderCreated(ctx, order); err != nil {
			s.logger.Error("Failed to publish order created event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	if order.PaymentMethod.Kind() == models.PaymentKindCashOnDelivery {
		s.stateMachine.FinalizeCod(ctx, order)
	}

	s.logger.Info("Order created successfully", logging.Fields{
		"order_id": order.ID,
		"total":    order.TotalPrice.StringFixed(2),
	})

	return result, nil
}

// HandleGatewayCallback verifies a gateway callback and applies its outcome.
// Nothing is read or written when the signature does not verify.
func (s *OrderService) HandleGatewayCallback(ctx context.Context, params payu.Params) (*models.Order, error) {
	if !s.gateway.Verify(params) {
		metrics.SignatureRejections.Inc()
		metrics.CallbackOutcomes.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("Rejected gateway callback with invalid signature", logging.Fields{
			"params": map[string]string(payu.Masked(params)),
		})
		return nil, errors.ErrInvalidSignature
	}

	orderID := params.Get(payu.FieldUDF1)
	if orderID == "" {
		metrics.CallbackOutcomes.WithLabelValues("not_found").Inc()
		return nil, errors.ErrNotFound
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			metrics.CallbackOutcomes.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	amount, err := decimal.NewFromString(params.Get(payu.FieldAmount))
	if err != nil || !amount.Equal(order.TotalPrice) {
		metrics.CallbackOutcomes.WithLabelValues("amount_mismatch").Inc()
		s.logger.Warn("Gateway callback amount does not match order total", logging.Fields{
			"order_id": order.ID,
			"amount":   params.Get(payu.FieldAmount),
			"total":    order.TotalPrice.StringFixed(2),
		})
		return nil, errors.NewValidationError("amount", "amount does not match order total")
	}

	success := payu.IsSuccess(params)
	result := payu.PaymentResultFrom(params, s.now())

	s.logger.Info("Applying gateway callback", logging.Fields{
		"order_id": order.ID,
		"txnid":    result.TransactionID,
		"status":   result.GatewayStatus,
	})

	updated, err := s.stateMachine.ApplyPaymentResult(ctx, order, result, success)
	if err != nil {
		if errors.Is(err, errors.ErrPersistenceConflict) {
			metrics.CallbackOutcomes.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	if success {
		metrics.CallbackOutcomes.WithLabelValues("success").Inc()
	} else {
		metrics.CallbackOutcomes.WithLabelValues("failure").Inc()
	}
	s.invalidate(ctx, updated.ID)

	return updated, nil
}

// GetOrder returns an order visible to requester. Orders owned by someone
// else are reported as not found unless the requester is an admin.
func (s *OrderService) GetOrder(ctx context.Context, id string, requester models.Requester) (*models.Order, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin && order.UserID != requester.UserID {
		return nil, errors.ErrNotFound
	}
	return order, nil
}

// ListMyOrders returns the caller's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

// ListOrdersByUser returns a user's orders for admins.
func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	s.logger.Debug("Getting user orders", logging.Fields{"user_id": userID})
	return s.orderRepo.ListByUser(ctx, userID)
}

// ListOrders retrieves orders based on filter criteria.
func (s *OrderService) ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	if err := ValidateOrderListFilter(filter); err != nil {
		return nil, 0, err
	}

	s.logger.Debug("Listing orders", logging.Fields{
		"user_id": filter.UserID,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})

	return s.orderRepo.List(ctx, filter)
}

// UpdateOrderStatus applies an admin status change.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := ValidateUpdateOrderStatusRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("Updating order status", logging.Fields{
		"order_id":   id,
		"new_status": req.Status,
	})

	current, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	order, err := s.stateMachine.AdminUpdateStatus(ctx, current, req.Status)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return order, nil
}

// ListNotifications returns the caller's in-app notifications, newest first.
func (s *OrderService) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	if s.notifications == nil {
		return []*models.Notification{}, nil
	}
	return s.notifications.ListByUser(ctx, userID, 0)
}

// Wait blocks until outstanding emails and notifications have been dispatched.
func (s *OrderService) Wait() {
	s.effects.Wait()
}

func (s *OrderService) buyer(ctx context.Context, userID string) *models.User {
	if s.userClient == nil {
		return nil
	}
	user, err := s.userClient.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to fetch buyer details", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	return user
}

func (s *OrderService) loadOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.orderCache != nil {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			return order, nil
		}
	}

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, order)
	return order, nil
}

// cacheOrder skips orders awaiting a callback: a read racing the callback's
// invalidation would otherwise pin the unpaid row for the whole TTL.
func (s *OrderService) cacheOrder(ctx context.Context, order *models.Order) {
	if s.orderCache == nil || order.AwaitingPayment() {
		return
	}
	if err := s.orderCache.Set(ctx, order); err != nil {
		s.logger.Error("Failed to cache order", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

func (s *OrderService) invalidate(ctx context.Context, id string) {
	if s.orderCache == nil {
		return
	}
	if err := s.orderCache.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to invalidate cached order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
	}
}
