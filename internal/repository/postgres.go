package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const orderColumns = `id, user_id, items, shipping_address, payment_method,
		       items_price, tax_price, shipping_price, total_price,
		       is_paid, paid_at, payment_result, status, is_delivered, delivered_at,
		       created_at, updated_at`

// PostgresOrderRepository implements interfaces.OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
	now    func() time.Time
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// FindByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	r.logger.Debug("Fetching order by ID", logging.Fields{"order_id": id})

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}

	return order, nil
}

// Create inserts the order and clears the owner's cart in one transaction.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.logger.Debug("Creating new order", logging.Fields{"user_id": order.UserID})

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	resultJSON, err := marshalPaymentResult(order.PaymentResult)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.ExecContext(ctx, insert,
		order.ID,
		order.UserID,
		itemsJSON,
		addressJSON,
		string(order.PaymentMethod),
		order.ItemsPrice,
		order.TaxPrice,
		order.ShippingPrice,
		order.TotalPrice,
		order.IsPaid,
		nullTime(order.PaidAt),
		resultJSON,
		string(order.Status),
		order.IsDelivered,
		nullTime(order.DeliveredAt),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert order", logging.Fields{
			"user_id": order.UserID,
			"error":   err.Error(),
		})
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, order.UserID); err != nil {
		r.logger.Error("Failed to clear cart", logging.Fields{
			"user_id": order.UserID,
			"error":   err.Error(),
		})
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Order created successfully", logging.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.TotalPrice.StringFixed(2),
	})
	return nil
}

// UpdateIfStatusMatches writes a mutated copy of the order only while the row
// still has the expected status and paid flag.
func (r *PostgresOrderRepository) UpdateIfStatusMatches(ctx context.Context, id string, expected models.OrderPrecondition, mutate models.OrderMutation) (*models.Order, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !expected.Matches(current) {
		return nil, errors.ErrPersistenceConflict
	}

	updated := current.Clone()
	mutate(updated)
	updated.UpdatedAt = r.now()

	resultJSON, err := marshalPaymentResult(updated.PaymentResult)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE orders
		SET status = $4, is_paid = $5, paid_at = $6, payment_result = $7,
		    is_delivered = $8, delivered_at = $9, updated_at = $10
		WHERE id = $1 AND status = $2 AND is_paid = $3
	`
	result, err := r.db.ExecContext(ctx, query,
		id,
		string(expected.Status),
		expected.IsPaid,
		string(updated.Status),
		updated.IsPaid,
		nullTime(updated.PaidAt),
		resultJSON,
		updated.IsDelivered,
		nullTime(updated.DeliveredAt),
		updated.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		r.logger.Warn("Conditional order update lost a race", logging.Fields{
			"order_id":        id,
			"expected_status": expected.Status,
			"expected_paid":   expected.IsPaid,
		})
		return nil, errors.ErrPersistenceConflict
	}

	r.logger.Info("Order updated", logging.Fields{
		"order_id":   id,
		"old_status": expected.Status,
		"new_status": updated.Status,
		"is_paid":    updated.IsPaid,
	})

	return updated, nil
}

// ListByUser returns a user's orders, newest first.
func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOrders(rows)
}

// List retrieves orders based on filter criteria, oldest first.
func (r *PostgresOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	r.logger.Debug("Listing orders", logging.Fields{
		"user_id": filter.UserID,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})

	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	selectQuery := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at ASC LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON, addressJSON, resultJSON []byte
	var paymentMethod, status string
	var paidAt, deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&itemsJSON,
		&addressJSON,
		&paymentMethod,
		&order.ItemsPrice,
		&order.TaxPrice,
		&order.ShippingPrice,
		&order.TotalPrice,
		&order.IsPaid,
		&paidAt,
		&resultJSON,
		&status,
		&order.IsDelivered,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.Status = models.OrderStatus(status)

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if len(resultJSON) > 0 {
		var pr models.PaymentResult
		if err := json.Unmarshal(resultJSON, &pr); err != nil {
			return nil, err
		}
		order.PaymentResult = &pr
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}

	return &order, nil
}

func collectOrders(rows *sql.Rows) ([]*models.Order, error) {
	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// marshalPaymentResult returns a NULL-able column value.
func marshalPaymentResult(pr *models.PaymentResult) (interface{}, error) {
	if pr == nil {
		return nil, nil
	}
	data, err := json.Marshal(pr)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
