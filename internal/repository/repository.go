package repository

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var (
	_ interfaces.OrderRepository   = (*PostgresOrderRepository)(nil)
	_ interfaces.OrderRepository   = (*MemoryOrderRepository)(nil)
	_ interfaces.NotificationStore = (*MongoNotificationStore)(nil)
	_ interfaces.NotificationStore = (*MemoryNotificationStore)(nil)
	_ OrderCache                   = (*RedisOrderCache)(nil)
)

// OrderCache defines caching operations for orders. A miss is (nil, nil).
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
}
