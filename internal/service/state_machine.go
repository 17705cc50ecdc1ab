package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// orderTransitions lists, for each status, the statuses an order may move to.
// Non-terminal statuses may be corrected in either direction. Cancellation is
// possible until dispatch. Delivered and Cancelled are final.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusReceived: {
		models.OrderStatusProcessing,
		models.OrderStatusDispatched,
		models.OrderStatusShipped,
		models.OrderStatusInTransit,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusReceived,
		models.OrderStatusDispatched,
		models.OrderStatusShipped,
		models.OrderStatusInTransit,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
	},
	models.OrderStatusDispatched: {
		models.OrderStatusReceived,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusInTransit,
		models.OrderStatusDelivered,
	},
	models.OrderStatusShipped: {
		models.OrderStatusReceived,
		models.OrderStatusProcessing,
		models.OrderStatusDispatched,
		models.OrderStatusInTransit,
		models.OrderStatusDelivered,
	},
	models.OrderStatusInTransit: {
		models.OrderStatusReceived,
		models.OrderStatusProcessing,
		models.OrderStatusDispatched,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	},
	models.OrderStatusDelivered: {},
	models.OrderStatusCancelled: {},
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateMachine applies order transitions through conditional writes and
// dispatches the side effects of each applied transition.
type StateMachine struct {
	repo    interfaces.OrderRepository
	effects *SideEffects
	events  interfaces.OrderEventPublisher
	logger  *logging.LoggerV2
	now     func() time.Time
}

func NewStateMachine(repo interfaces.OrderRepository, effects *SideEffects, events interfaces.OrderEventPublisher) *StateMachine {
	return &StateMachine{
		repo:    repo,
		effects: effects,
		events:  events,
		logger:  logging.NewLoggerV2("order-state-machine"),
		now:     time.Now,
	}
}

// FinalizeCod completes a cash-on-delivery checkout. The order stays in
// Order Received and unpaid; only the confirmation email goes out.
func (m *StateMachine) FinalizeCod(ctx context.Context, order *models.Order) {
	m.logger.Info("Cash on delivery order finalized", logging.Fields{
		"order_id": order.ID,
		"total":    order.TotalPrice.StringFixed(2),
	})
	m.effects.OrderConfirmed(order)
}

// ApplyPaymentResult records a verified gateway outcome on order.
func (m *StateMachine) ApplyPaymentResult(ctx context.Context, order *models.Order, result models.PaymentResult, success bool) (*models.Order, error) {
	if success {
		return m.applyPaymentSuccess(ctx, order, result)
	}
	return m.applyPaymentFailure(ctx, order, result)
}

func (m *StateMachine) applyPaymentSuccess(ctx context.Context, order *models.Order, result models.PaymentResult) (*models.Order, error) {
	if order.IsPaid {
		m.logger.Info("Duplicate payment success ignored", logging.Fields{
			"order_id": order.ID,
			"txnid":    result.TransactionID,
		})
		return order, nil
	}
	if order.Status == models.OrderStatusCancelled {
		m.logger.Warn("Payment success for cancelled order", logging.Fields{
			"order_id": order.ID,
			"txnid":    result.TransactionID,
		})
		return nil, errors.ErrPersistenceConflict
	}

	// Fulfilment may already have started; only Order Received advances.
	target := order.Status
	if target == models.OrderStatusReceived {
		target = models.OrderStatusProcessing
	}

	paidAt := m.now()
	updated, err := m.repo.UpdateIfStatusMatches(ctx, order.ID, models.PreconditionOf(order), func(o *models.Order) {
		o.Status = target
		o.IsPaid = true
		o.PaidAt = &paidAt
		pr := result
		o.PaymentResult = &pr
	})
	if errors.Is(err, errors.ErrPersistenceConflict) {
		return m.resolveConflict(ctx, order.ID, func(o *models.Order) bool { return o.IsPaid })
	}
	if err != nil {
		return nil, err
	}

	m.applied(order.Status, updated)
	m.effects.OrderConfirmed(updated)
	m.publishPaymentUpdated(ctx, updated)
	return updated, nil
}

func (m *StateMachine) applyPaymentFailure(ctx context.Context, order *models.Order, result models.PaymentResult) (*models.Order, error) {
	if order.Status == models.OrderStatusCancelled {
		m.logger.Info("Duplicate payment failure ignored", logging.Fields{"order_id": order.ID})
		return order, nil
	}
	if order.IsPaid {
		m.logger.Warn("Payment failure ignored for paid order", logging.Fields{
			"order_id": order.ID,
			"txnid":    result.TransactionID,
			"status":   result.GatewayStatus,
		})
		return order, nil
	}
	if !CanTransition(order.Status, models.OrderStatusCancelled) {
		return nil, errors.ErrPersistenceConflict
	}

	updated, err := m.repo.UpdateIfStatusMatches(ctx, order.ID, models.PreconditionOf(order), func(o *models.Order) {
		o.Status = models.OrderStatusCancelled
		o.IsPaid = false
		o.PaidAt = nil
		pr := result
		o.PaymentResult = &pr
	})
	if errors.Is(err, errors.ErrPersistenceConflict) {
		return m.resolveConflict(ctx, order.ID, func(o *models.Order) bool {
			return o.Status == models.OrderStatusCancelled
		})
	}
	if err != nil {
		return nil, err
	}

	m.applied(order.Status, updated)
	m.effects.PaymentFailed(updated)
	m.publishPaymentUpdated(ctx, updated)
	return updated, nil
}

// AdminUpdateStatus moves order to target. Re-applying the current status is
// allowed and only re-notifies the owner.
func (m *StateMachine) AdminUpdateStatus(ctx context.Context, order *models.Order, target models.OrderStatus) (*models.Order, error) {
	if !target.IsValid() {
		return nil, errors.NewValidationError("status", fmt.Sprintf("invalid order status %q", target))
	}

	previous := order.Status
	if target == previous {
		m.effects.StatusChanged(order, previous)
		return order, nil
	}

	if !CanTransition(previous, target) {
		return nil, errors.NewValidationError("status", fmt.Sprintf(
			"invalid status transition from %s to %s",
			previous,
			target,
		))
	}

	now := m.now()
	updated, err := m.repo.UpdateIfStatusMatches(ctx, order.ID, models.PreconditionOf(order), func(o *models.Order) {
		o.Status = target
		if target == models.OrderStatusDelivered {
			o.IsDelivered = true
			o.DeliveredAt = &now
		}
	})
	if errors.Is(err, errors.ErrPersistenceConflict) {
		return m.resolveConflict(ctx, order.ID, func(o *models.Order) bool { return o.Status == target })
	}
	if err != nil {
		return nil, err
	}

	m.applied(previous, updated)
	m.effects.StatusChanged(updated, previous)

	if m.events != nil {
		if err := m.events.PublishOrderStatusChanged(ctx, updated, previous); err != nil {
			m.logger.Error("Failed to publish status change event", logging.Fields{
				"order_id": updated.ID,
				"error":    err.Error(),
			})
		}
	}

	return updated, nil
}

// resolveConflict re-reads an order after a lost conditional write. The race
// is benign when the stored order already reflects the intended outcome.
func (m *StateMachine) resolveConflict(ctx context.Context, id string, reached func(*models.Order) bool) (*models.Order, error) {
	current, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reached(current) {
		m.logger.Info("Concurrent update already applied", logging.Fields{
			"order_id": id,
			"status":   current.Status,
		})
		return current, nil
	}

	m.logger.Warn("Order changed concurrently", logging.Fields{
		"order_id": id,
		"status":   current.Status,
		"is_paid":  current.IsPaid,
	})
	return nil, errors.ErrPersistenceConflict
}

func (m *StateMachine) applied(from models.OrderStatus, updated *models.Order) {
	metrics.StatusTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	m.logger.Info("Order transition applied", logging.Fields{
		"order_id":   updated.ID,
		"old_status": from,
		"new_status": updated.Status,
		"is_paid":    updated.IsPaid,
	})
}

func (m *StateMachine) publishPaymentUpdated(ctx context.Context, order *models.Order) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishPaymentUpdated(ctx, order); err != nil {
		m.logger.Error("Failed to publish payment event", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}
