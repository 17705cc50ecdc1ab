package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order. Values are the display
// strings shown to shoppers and admins.
type OrderStatus string

const (
	OrderStatusReceived   OrderStatus = "Order Received"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusDispatched OrderStatus = "Order Dispatched"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusInTransit  OrderStatus = "In Transit"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists every defined status in fulfilment order.
var OrderStatuses = []OrderStatus{
	OrderStatusReceived,
	OrderStatusProcessing,
	OrderStatusDispatched,
	OrderStatusShipped,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether s is one of the defined statuses.
func (s OrderStatus) IsValid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineTotal is quantity times the snapshotted unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// PaymentResult is what the gateway reported for the order's transaction.
type PaymentResult struct {
	TransactionID string    `json:"transaction_id"`
	GatewayStatus string    `json:"gateway_status"`
	UpdateTime    time.Time `json:"update_time"`
	PayerEmail    string    `json:"payer_email,omitempty"`
}

const GatewayStatusPending = "pending"

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ItemsPrice      decimal.Decimal `json:"items_price"`
	TaxPrice        decimal.Decimal `json:"tax_price"`
	ShippingPrice   decimal.Decimal `json:"shipping_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentResult   *PaymentResult  `json:"payment_result,omitempty"`
	Status          OrderStatus     `json:"status"`
	IsDelivered     bool            `json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ShortID is the prefix of the order id shown to shoppers.
func (o *Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[:8]
}

// AwaitingPayment reports whether a gateway order has no callback recorded yet.
func (o *Order) AwaitingPayment() bool {
	return !o.IsPaid && o.PaymentResult != nil && o.PaymentResult.GatewayStatus == GatewayStatusPending
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		c.PaymentResult = &pr
	}
	return &c
}

// OrderPrecondition is the state an order must still be in for a conditional
// write to apply.
type OrderPrecondition struct {
	Status OrderStatus
	IsPaid bool
}

// Matches reports whether the order is still in the expected state.
func (p OrderPrecondition) Matches(o *Order) bool {
	return o.Status == p.Status && o.IsPaid == p.IsPaid
}

// PreconditionOf captures the current state of o.
func PreconditionOf(o *Order) OrderPrecondition {
	return OrderPrecondition{Status: o.Status, IsPaid: o.IsPaid}
}

// OrderMutation edits a loaded order in place before it is written back.
type OrderMutation func(o *Order)

type CreateOrderRequest struct {
	Items           []OrderItem      `json:"order_items"`
	ShippingAddress Address          `json:"shipping_address"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	ItemsPrice      *decimal.Decimal `json:"items_price,omitempty"`
	TaxPrice        *decimal.Decimal `json:"tax_price,omitempty"`
	ShippingPrice   *decimal.Decimal `json:"shipping_price,omitempty"`
	TotalPrice      *decimal.Decimal `json:"total_price,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

type OrderListFilter struct {
	UserID string
	Status *OrderStatus
	Limit  int
	Offset int
}
