package payu

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	SandboxURL    = "https://test.payu.in/_payment"
	ProductionURL = "https://secure.payu.in/_payment"

	EnvironmentProduction = "production"

	StatusSuccess = "success"
)

// Gateway builds signed payment requests and verifies callbacks for one merchant account.
type Gateway struct {
	cfg    config.PayUConfig
	txnIDs *TxnIDGenerator
	logger *logging.LoggerV2
}

// NewGateway creates a gateway adapter from merchant configuration.
func NewGateway(cfg config.PayUConfig, logger *logging.LoggerV2) *Gateway {
	if cfg.TxnPrefix == "" {
		cfg.TxnPrefix = "MB"
	}
	return &Gateway{
		cfg:    cfg,
		txnIDs: NewTxnIDGenerator(cfg.TxnPrefix, nil),
		logger: logger,
	}
}

// BaseURL is the hosted checkout endpoint for the configured environment.
func (g *Gateway) BaseURL() string {
	if strings.EqualFold(g.cfg.Environment, EnvironmentProduction) {
		return ProductionURL
	}
	return SandboxURL
}

// NewTxnID issues a fresh gateway transaction id.
func (g *Gateway) NewTxnID() string {
	return g.txnIDs.Next()
}

// BuildSignedRequest assembles the hosted checkout form for order. The order's
// placeholder transaction id is reused when present so the callback can be
// correlated with what was persisted.
func (g *Gateway) BuildSignedRequest(order *models.Order, buyer *models.User) (*models.PaymentRequest, error) {
	if order == nil {
		return nil, errors.NewValidationError("order", "order is required")
	}
	if g.cfg.MerchantKey == "" || g.cfg.Salt == "" {
		return nil, errors.New("payu: merchant key and salt must be configured")
	}

	txnID := ""
	if order.PaymentResult != nil {
		txnID = order.PaymentResult.TransactionID
	}
	if txnID == "" {
		txnID = g.NewTxnID()
	}

	name := order.ShippingAddress.Name
	email := ""
	phone := order.ShippingAddress.Phone
	if buyer != nil {
		if buyer.Name != "" {
			name = buyer.Name
		}
		email = buyer.Email
		if phone == "" {
			phone = buyer.Phone
		}
	}
	firstName, lastName := splitName(name)

	params := Params{
		FieldKey:             g.cfg.MerchantKey,
		FieldTxnID:           txnID,
		FieldAmount:          order.TotalPrice.StringFixed(2),
		FieldProductInfo:     "Order #" + order.ShortID(),
		FieldFirstName:       firstName,
		FieldLastName:        lastName,
		FieldEmail:           email,
		FieldPhone:           phone,
		FieldAddress1:        order.ShippingAddress.Street,
		FieldAddress2:        "",
		FieldCity:            order.ShippingAddress.City,
		FieldState:           order.ShippingAddress.State,
		FieldCountry:         order.ShippingAddress.Country,
		FieldZipcode:         order.ShippingAddress.Zip,
		FieldSuccessURL:      g.cfg.SuccessURL,
		FieldFailureURL:      g.cfg.FailureURL,
		FieldCancelURL:       g.cfg.CancelURL,
		FieldServiceProvider: g.cfg.ServiceProvider,
		FieldUDF1:            order.ID,
		FieldUDF2:            order.UserID,
		FieldUDF3:            string(order.PaymentMethod),
		FieldUDF4:            "",
		FieldUDF5:            "",
	}
	params[FieldHash] = OutboundSignature(params, g.cfg.Salt)

	g.logger.Debug("Built signed payment request", logging.Fields{
		"order_id": order.ID,
		"txnid":    txnID,
		"amount":   params[FieldAmount],
	})

	return &models.PaymentRequest{
		Action: g.BaseURL(),
		Params: params,
	}, nil
}

// Verify checks a callback against the configured salt. The merchant key is
// always taken from configuration, never from the callback.
func (g *Gateway) Verify(params Params) bool {
	signed := make(Params, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed[FieldKey] = g.cfg.MerchantKey
	return VerifyInboundSignature(signed, g.cfg.Salt)
}

// IsSuccess reports whether the callback's status means the payment was captured.
func IsSuccess(params Params) bool {
	return strings.EqualFold(strings.TrimSpace(params.Get(FieldStatus)), StatusSuccess)
}

// PaymentResultFrom captures what the gateway reported in a callback.
func PaymentResultFrom(params Params, now time.Time) models.PaymentResult {
	return models.PaymentResult{
		TransactionID: params.Get(FieldTxnID),
		GatewayStatus: params.Get(FieldStatus),
		UpdateTime:    now,
		PayerEmail:    params.Get(FieldEmail),
	}
}

// Masked returns a copy of params that is safe to log.
func Masked(params Params) Params {
	out := make(Params, len(params))
	for k, v := range params {
		switch k {
		case FieldHash, FieldKey:
			out[k] = mask(v)
		default:
			out[k] = v
		}
	}
	return out
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "****"
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// TxnIDGenerator issues prefix+milliseconds ids that never repeat within a process,
// even when called more than once in the same millisecond.
type TxnIDGenerator struct {
	prefix string
	now    func() time.Time
	last   int64
}

// NewTxnIDGenerator creates a generator. A nil clock uses time.Now.
func NewTxnIDGenerator(prefix string, now func() time.Time) *TxnIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &TxnIDGenerator{prefix: prefix, now: now}
}

func (g *TxnIDGenerator) Next() string {
	for {
		last := atomic.LoadInt64(&g.last)
		next := g.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapInt64(&g.last, last, next) {
			return g.prefix + strconv.FormatInt(next, 10)
		}
	}
}
