package service

import (
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// OrderTotal represents the pricing breakdown for an order.
type OrderTotal struct {
	ItemsPrice    decimal.Decimal `json:"items_price"`
	TaxPrice      decimal.Decimal `json:"tax_price"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// PricingPolicy recomputes order totals from line items. Client-declared
// totals are never trusted.
type PricingPolicy struct {
	TaxRate                decimal.Decimal
	DeliveryChargePerLine  decimal.Decimal
	PackagingChargePerUnit decimal.Decimal
}

func NewPricingPolicy(cfg config.PricingConfig) PricingPolicy {
	return PricingPolicy{
		TaxRate:                cfg.TaxRate,
		DeliveryChargePerLine:  cfg.DeliveryChargePerLine,
		PackagingChargePerUnit: cfg.PackagingChargePerUnit,
	}
}

// CalculateTax computes tax on the items subtotal, rounded to two places.
func (p PricingPolicy) CalculateTax(itemsPrice decimal.Decimal) decimal.Decimal {
	return itemsPrice.Mul(p.TaxRate).Round(2)
}

// CalculateShipping charges per line for delivery and per unit for packaging.
func (p PricingPolicy) CalculateShipping(items []models.OrderItem) decimal.Decimal {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	delivery := p.DeliveryChargePerLine.Mul(decimal.NewFromInt(int64(len(items))))
	packaging := p.PackagingChargePerUnit.Mul(decimal.NewFromInt(int64(units)))
	return delivery.Add(packaging).Round(2)
}

// Calculate computes the full order breakdown.
func (p PricingPolicy) Calculate(items []models.OrderItem) OrderTotal {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.LineTotal())
	}
	itemsPrice = itemsPrice.Round(2)

	tax := p.CalculateTax(itemsPrice)
	shipping := p.CalculateShipping(items)

	return OrderTotal{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping),
	}
}

// mismatchedFields lists the declared amounts that differ from the computed ones.
func (t OrderTotal) mismatchedFields(req *models.CreateOrderRequest) []string {
	var fields []string
	check := func(name string, declared *decimal.Decimal, computed decimal.Decimal) {
		if declared != nil && !declared.Equal(computed) {
			fields = append(fields, name)
		}
	}
	check("items_price", req.ItemsPrice, t.ItemsPrice)
	check("tax_price", req.TaxPrice, t.TaxPrice)
	check("shipping_price", req.ShippingPrice, t.ShippingPrice)
	check("total_price", req.TotalPrice, t.TotalPrice)
	return fields
}
