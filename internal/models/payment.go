package models

// PaymentMethod is the shopper's selected way to pay.
type PaymentMethod string

const (
	PaymentMethodCOD        PaymentMethod = "COD"
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodCard       PaymentMethod = "Card"
	PaymentMethodNetBanking PaymentMethod = "NetBanking"
)

// PaymentKind separates methods settled on delivery from those that go through the gateway.
type PaymentKind string

const (
	PaymentKindCashOnDelivery PaymentKind = "CashOnDelivery"
	PaymentKindGateway        PaymentKind = "GatewayPayment"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodUPI, PaymentMethodCard, PaymentMethodNetBanking:
		return true
	}
	return false
}

func (m PaymentMethod) Kind() PaymentKind {
	if m == PaymentMethodCOD {
		return PaymentKindCashOnDelivery
	}
	return PaymentKindGateway
}

// PaymentRequest is the signed form the storefront posts to the gateway.
type PaymentRequest struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params"`
}

// OrderCreationResult is returned from checkout. Payment is set only for gateway methods.
type OrderCreationResult struct {
	Order   *Order          `json:"order"`
	Payment *PaymentRequest `json:"payment,omitempty"`
}
