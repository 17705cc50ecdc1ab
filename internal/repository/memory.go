package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// MemoryOrderRepository is an in-process OrderRepository used by tests and
// local runs without PostgreSQL. Carts live alongside orders so that checkout
// clears them under the same lock.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	carts  map[string][]models.OrderItem
	writes int
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*models.Order),
		carts:  make(map[string][]models.OrderItem),
	}
}

func (m *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return order.Clone(), nil
}

func (m *MemoryOrderRepository) Create(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return errors.ErrPersistenceConflict
	}
	m.orders[order.ID] = order.Clone()
	delete(m.carts, order.UserID)
	m.writes++
	return nil
}

func (m *MemoryOrderRepository) UpdateIfStatusMatches(ctx context.Context, id string, expected models.OrderPrecondition, mutate models.OrderMutation) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.orders[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if !expected.Matches(current) {
		return nil, errors.ErrPersistenceConflict
	}

	updated := current.Clone()
	mutate(updated)
	updated.UpdatedAt = time.Now()
	m.orders[id] = updated
	m.writes++
	return updated.Clone(), nil
}

func (m *MemoryOrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*models.Order, 0)
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, o.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

// SetCart seeds a user's cart.
func (m *MemoryOrderRepository) SetCart(userID string, items []models.OrderItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = append([]models.OrderItem(nil), items...)
}

// CartSize returns the number of lines in a user's cart.
func (m *MemoryOrderRepository) CartSize(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

// Put stores an order as-is, bypassing checkout.
func (m *MemoryOrderRepository) Put(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
}

// Writes counts successful creates and updates.
func (m *MemoryOrderRepository) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// MemoryNotificationStore keeps notifications in process.
type MemoryNotificationStore struct {
	mu            sync.Mutex
	notifications []*models.Notification
	err           error
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{}
}

// FailWith makes subsequent Create calls return err.
func (s *MemoryNotificationStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryNotificationStore) Create(ctx context.Context, userID, message, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		Link:      link,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID {
			continue
		}
		c := *n
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every stored notification in insertion order.
func (s *MemoryNotificationStore) All() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Notification(nil), s.notifications...)
}
