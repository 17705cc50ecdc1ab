// Package interfaces declares the collaborator contracts the checkout core depends on.
package interfaces

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// OrderRepository persists orders. Every status change goes through
// UpdateIfStatusMatches so concurrent writers cannot overwrite each other.
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)

	// Create inserts the order and empties the owner's cart atomically.
	Create(ctx context.Context, order *models.Order) error

	// UpdateIfStatusMatches applies mutate only if the stored order still matches
	// expected. It returns errors.ErrPersistenceConflict otherwise.
	UpdateIfStatusMatches(ctx context.Context, id string, expected models.OrderPrecondition, mutate models.OrderMutation) (*models.Order, error)

	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)
}

// EmailDispatcher delivers transactional email. Failures are *errors.DeliveryError.
type EmailDispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NotificationDispatcher records in-app notifications.
type NotificationDispatcher interface {
	Create(ctx context.Context, userID, message, link string) error
}

// NotificationStore adds the read side used by the notifications endpoint.
type NotificationStore interface {
	NotificationDispatcher
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

// UserDirectory resolves buyer details. A missing user is (nil, nil).
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// OrderEventPublisher emits order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previousStatus models.OrderStatus) error
	PublishPaymentUpdated(ctx context.Context, order *models.Order) error
}
