package service

import (
	"fmt"
	"strings"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ValidateCreateOrderRequest validates an order creation request.
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if req == nil {
		return errors.NewValidationError("body", "request body is required")
	}

	if len(req.Items) == 0 {
		return errors.NewValidationError("items", "no order items")
	}

	for i, item := range req.Items {
		if err := validateOrderItem(item, i); err != nil {
			return err
		}
	}

	if err := validateAddress(&req.ShippingAddress, "shipping_address"); err != nil {
		return err
	}

	if !req.PaymentMethod.IsValid() {
		return errors.NewValidationError("payment_method", fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}

	return nil
}

func validateOrderItem(item models.OrderItem, index int) error {
	field := fmt.Sprintf("items[%d]", index)

	if strings.TrimSpace(item.ProductID) == "" {
		return errors.NewValidationError(field, "product ID is required for item")
	}

	if item.Quantity < 1 {
		return errors.NewValidationError(field, "quantity must be at least 1")
	}

	if item.Price.IsNegative() {
		return errors.NewValidationError(field, "price cannot be negative")
	}

	return nil
}

func validateAddress(addr *models.Address, field string) error {
	required := []struct {
		name  string
		value string
	}{
		{"name", addr.Name},
		{"phone", addr.Phone},
		{"street", addr.Street},
		{"city", addr.City},
		{"zip", addr.Zip},
		{"country", addr.Country},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.NewValidationError(field+"."+r.name, r.name+" is required")
		}
	}

	return nil
}

// ValidateUpdateOrderStatusRequest validates a status update request.
func ValidateUpdateOrderStatusRequest(req *models.UpdateOrderStatusRequest) error {
	if req == nil || req.Status == "" {
		return errors.NewValidationError("status", "status is required")
	}

	if !req.Status.IsValid() {
		return errors.NewValidationError("status", fmt.Sprintf("invalid order status %q", req.Status))
	}

	return nil
}

// ValidateOrderListFilter validates a list filter and applies paging defaults.
func ValidateOrderListFilter(filter *models.OrderListFilter) error {
	if filter.Limit < 0 {
		return errors.NewValidationError("limit", "limit cannot be negative")
	}

	if filter.Offset < 0 {
		return errors.NewValidationError("offset", "offset cannot be negative")
	}

	if filter.Status != nil && !filter.Status.IsValid() {
		return errors.NewValidationError("status", "invalid order status")
	}

	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	return nil
}
