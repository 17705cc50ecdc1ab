package payu

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

func testGateway(env string) *Gateway {
	return NewGateway(config.PayUConfig{
		MerchantKey:     "TESTKEY",
		Salt:            testSalt,
		Environment:     env,
		SuccessURL:      "https://shop.example/payment/success",
		FailureURL:      "https://shop.example/payment/failure",
		CancelURL:       "https://shop.example/payment/failure",
		ServiceProvider: "payu_paisa",
		TxnPrefix:       "MB",
	}, nil)
}

func testOrder() *models.Order {
	return &models.Order{
		ID:            "5f1c2d3e-aaaa-bbbb-cccc-123456789abc",
		UserID:        "user-42",
		PaymentMethod: models.PaymentMethodUPI,
		TotalPrice:    decimal.RequireFromString("125.5"),
		ShippingAddress: models.Address{
			Name:    "Jane Q Doe",
			Phone:   "9999999999",
			Street:  "12 Market Road",
			City:    "Pune",
			State:   "MH",
			Zip:     "411001",
			Country: "India",
		},
		PaymentResult: &models.PaymentResult{TransactionID: "MB1700000000000", GatewayStatus: models.GatewayStatusPending},
	}
}

func TestGateway_BaseURL(t *testing.T) {
	assert.Equal(t, SandboxURL, testGateway("sandbox").BaseURL())
	assert.Equal(t, SandboxURL, testGateway("").BaseURL())
	assert.Equal(t, ProductionURL, testGateway("production").BaseURL())
	assert.Equal(t, ProductionURL, testGateway("PRODUCTION").BaseURL())
}

func TestGateway_BuildSignedRequest(t *testing.T) {
	g := testGateway("sandbox")
	buyer := &models.User{ID: "user-42", Name: "Jane Q Doe", Email: "jane@example.com"}

	req, err := g.BuildSignedRequest(testOrder(), buyer)
	require.NoError(t, err)

	assert.Equal(t, SandboxURL, req.Action)
	p := Params(req.Params)
	assert.Equal(t, "TESTKEY", p[FieldKey])
	assert.Equal(t, "MB1700000000000", p[FieldTxnID])
	assert.Equal(t, "125.50", p[FieldAmount])
	assert.Equal(t, "Order #5f1c2d3e", p[FieldProductInfo])
	assert.Equal(t, "Jane", p[FieldFirstName])
	assert.Equal(t, "Q Doe", p[FieldLastName])
	assert.Equal(t, "jane@example.com", p[FieldEmail])
	assert.Equal(t, "9999999999", p[FieldPhone])
	assert.Equal(t, "12 Market Road", p[FieldAddress1])
	assert.Equal(t, "411001", p[FieldZipcode])
	assert.Equal(t, "https://shop.example/payment/success", p[FieldSuccessURL])
	assert.Equal(t, "https://shop.example/payment/failure", p[FieldFailureURL])
	assert.Equal(t, "payu_paisa", p[FieldServiceProvider])
	assert.Equal(t, "5f1c2d3e-aaaa-bbbb-cccc-123456789abc", p[FieldUDF1])
	assert.Equal(t, "user-42", p[FieldUDF2])
	assert.Equal(t, "UPI", p[FieldUDF3])

	// Recomputing over the same inputs yields the embedded digest.
	assert.Equal(t, OutboundSignature(p, testSalt), p[FieldHash])
}

func TestGateway_BuildSignedRequest_GeneratesTxnIDWhenMissing(t *testing.T) {
	order := testOrder()
	order.PaymentResult = nil

	req, err := testGateway("sandbox").BuildSignedRequest(order, nil)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^MB\d{13,}$`), req.Params[FieldTxnID])
	assert.Equal(t, "Jane", req.Params[FieldFirstName])
	assert.Equal(t, "", req.Params[FieldEmail])
}

func TestGateway_BuildSignedRequest_RequiresCredentials(t *testing.T) {
	g := NewGateway(config.PayUConfig{}, nil)
	_, err := g.BuildSignedRequest(testOrder(), nil)
	assert.Error(t, err)
}

func TestGateway_Verify(t *testing.T) {
	g := testGateway("sandbox")

	p := signedCallback()
	assert.True(t, g.Verify(p))

	p[FieldAmount] = "99.00"
	assert.False(t, g.Verify(p))
}

func TestGateway_Verify_IgnoresCallbackKey(t *testing.T) {
	g := testGateway("sandbox")

	p := signedCallback()
	delete(p, FieldKey)
	assert.True(t, g.Verify(p), "configured merchant key is used when the callback omits it")

	p[FieldKey] = "SOMEONEELSE"
	assert.True(t, g.Verify(p))
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(Params{FieldStatus: "success"}))
	assert.True(t, IsSuccess(Params{FieldStatus: " SUCCESS "}))
	assert.False(t, IsSuccess(Params{FieldStatus: "failure"}))
	assert.False(t, IsSuccess(Params{FieldStatus: "pending"}))
	assert.False(t, IsSuccess(nil))
}

func TestPaymentResultFrom(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := PaymentResultFrom(signedCallback(), now)

	assert.Equal(t, "MB1000", r.TransactionID)
	assert.Equal(t, "success", r.GatewayStatus)
	assert.Equal(t, "jane@example.com", r.PayerEmail)
	assert.Equal(t, now, r.UpdateTime)
}

func TestMasked(t *testing.T) {
	p := signedCallback()
	m := Masked(p)

	assert.Equal(t, p[FieldHash][:4]+"****", m[FieldHash])
	assert.Equal(t, "TEST****", m[FieldKey])
	assert.Equal(t, p[FieldAmount], m[FieldAmount])
	assert.NotEqual(t, p[FieldHash], m[FieldHash])
}

func TestTxnIDGenerator_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	gen := NewTxnIDGenerator("MB", func() time.Time { return fixed })

	assert.Equal(t, "MB1700000000000", gen.Next())
	assert.Equal(t, "MB1700000000001", gen.Next())
	assert.Equal(t, "MB1700000000002", gen.Next())
}

func TestTxnIDGenerator_ConcurrentUnique(t *testing.T) {
	gen := NewTxnIDGenerator("MB", nil)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Jane", "Jane", ""},
		{"Jane Doe", "Jane", "Doe"},
		{"  Jane   Mary Doe ", "Jane", "Mary Doe"},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := splitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}
