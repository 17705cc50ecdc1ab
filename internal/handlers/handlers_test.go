package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payu"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

const (
	testKey  = "TESTKEY"
	testSalt = "SALT1"
	buyerID  = "user-1"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Health(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}

	if resp["service"] != serviceName {
		t.Errorf("Expected service %q, got %v", serviceName, resp["service"])
	}
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		checks []ReadinessCheck
		want   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all pass", []ReadinessCheck{
			{Name: "postgres", Ping: func(ctx context.Context) error { return nil }},
			{Name: "redis", Ping: func(ctx context.Context) error { return nil }},
		}, http.StatusOK},
		{"one fails", []ReadinessCheck{
			{Name: "postgres", Ping: func(ctx context.Context) error { return nil }},
			{Name: "mongodb", Ping: func(ctx context.Context) error { return fmt.Errorf("connection refused") }},
		}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(nil, nil, tt.checks...)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

			h.Ready(c)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestLive(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.Live(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", errors.ErrNotFound), http.StatusNotFound},
		{"validation", errors.NewValidationError("items", "no order items"), http.StatusBadRequest},
		{"invalid signature", errors.ErrInvalidSignature, http.StatusBadRequest},
		{"conflict", errors.ErrPersistenceConflict, http.StatusConflict},
		{"unauthorized", errors.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", errors.ErrForbidden, http.StatusForbidden},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			handleError(c, tt.err)

			assert.Equal(t, tt.want, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

type env struct {
	h      *Handlers
	svc    *service.OrderService
	repo   *repository.MemoryOrderRepository
	mailer *clients.MockMailer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		PayU: config.PayUConfig{
			MerchantKey: testKey,
			Salt:        testSalt,
			SuccessURL:  "http://localhost:3000/payment/success",
			FailureURL:  "http://localhost:3000/payment/failure",
			TxnPrefix:   "MB",
		},
		Email: config.EmailConfig{SendTimeout: time.Second},
	}

	users := clients.NewMockUserClient()
	users.AddUser(&models.User{ID: buyerID, Name: "Jane Doe", Email: "jane@example.com"})

	e := &env{
		repo:   repository.NewMemoryOrderRepository(),
		mailer: clients.NewMockMailer(),
	}
	gateway := payu.NewGateway(cfg.PayU, logging.NewLoggerV2("payu-test"))
	e.svc = service.NewOrderService(e.repo, nil, gateway, users, e.mailer, repository.NewMemoryNotificationStore(), nil, cfg)
	e.h = NewHandlers(e.svc, cfg)
	t.Cleanup(e.svc.Wait)
	return e
}

// call runs handler with the caller identity RequireAuth would have set.
func call(handler gin.HandlerFunc, req *http.Request, userID, role string, params gin.Params) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	if userID != "" {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
	}
	handler(c)
	return w
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func checkoutBody(method models.PaymentMethod) map[string]interface{} {
	return map[string]interface{}{
		"order_items": []map[string]interface{}{
			{"product_id": "p1", "name": "Mug", "quantity": 2, "price": "10.00"},
			{"product_id": "p2", "name": "Spoon", "quantity": 1, "price": "5.00"},
		},
		"shipping_address": map[string]string{
			"name":    "Jane Doe",
			"phone":   "9999999999",
			"street":  "1 Main St",
			"city":    "Pune",
			"zip":     "411001",
			"country": "IN",
		},
		"payment_method": string(method),
	}
}

func (e *env) gatewayOrder(t *testing.T) *models.Order {
	t.Helper()
	result, err := e.svc.CreateOrder(context.Background(), buyerID, &models.CreateOrderRequest{
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Mug", Quantity: 2, Price: decimal.NewFromInt(10)},
		},
		ShippingAddress: models.Address{Name: "Jane Doe", Phone: "9999999999", Street: "1 Main St", City: "Pune", Zip: "411001", Country: "IN"},
		PaymentMethod:   models.PaymentMethodUPI,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	return result.Order
}

func callbackParams(order *models.Order, status string) payu.Params {
	p := payu.Params{
		payu.FieldKey:         testKey,
		payu.FieldTxnID:       order.PaymentResult.TransactionID,
		payu.FieldAmount:      order.TotalPrice.StringFixed(2),
		payu.FieldProductInfo: "Order #" + order.ShortID(),
		payu.FieldFirstName:   "Jane",
		payu.FieldEmail:       "jane@example.com",
		payu.FieldUDF1:        order.ID,
		payu.FieldStatus:      status,
	}
	p[payu.FieldHash] = payu.InboundSignature(p, testSalt)
	return p
}

func formRequest(target string, params payu.Params) *http.Request {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)

	w := call(e.h.CreateOrder, jsonRequest(t, http.MethodPost, "/api/orders", checkoutBody(models.PaymentMethodCOD)), buyerID, "User", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result models.OrderCreationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Nil(t, result.Payment)
	assert.Equal(t, models.OrderStatusReceived, result.Order.Status)
	assert.Equal(t, buyerID, result.Order.UserID)

	w = call(e.h.CreateOrder, jsonRequest(t, http.MethodPost, "/api/orders", checkoutBody(models.PaymentMethodCard)), buyerID, "User", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Payment)
	assert.Equal(t, payu.SandboxURL, result.Payment.Action)
	assert.Equal(t, result.Order.ID, result.Payment.Params[payu.FieldUDF1])
}

func TestCreateOrder_Rejected(t *testing.T) {
	e := newEnv(t)

	empty := checkoutBody(models.PaymentMethodCOD)
	empty["order_items"] = []interface{}{}

	tests := []struct {
		name   string
		req    *http.Request
		userID string
		want   int
	}{
		{"malformed body", httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{")), buyerID, http.StatusBadRequest},
		{"no items", jsonRequest(t, http.MethodPost, "/api/orders", empty), buyerID, http.StatusBadRequest},
		{"anonymous", jsonRequest(t, http.MethodPost, "/api/orders", checkoutBody(models.PaymentMethodCOD)), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := call(e.h.CreateOrder, tt.req, tt.userID, "User", nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, e.repo.Writes())
}

func TestPaymentCallback_Form(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)

	w := call(e.h.PaymentCallback, formRequest("/api/payments/payu/callback", callbackParams(order, "success")), "", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool               `json:"success"`
		OrderID string             `json:"order_id"`
		Status  models.OrderStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, order.ID, resp.OrderID)
	assert.Equal(t, models.OrderStatusProcessing, resp.Status)

	e.svc.Wait()
	assert.Equal(t, 1, e.mailer.Count())
}

func TestPaymentCallback_JSON(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)

	params := callbackParams(order, "failure")
	body := map[string]interface{}{}
	for k, v := range params {
		body[k] = v
	}

	w := call(e.h.PaymentCallback, jsonRequest(t, http.MethodPost, "/api/orders/verify-payment", body), "", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, w.Body.String(), string(models.OrderStatusCancelled))
}

func TestPaymentCallback_JSONNumberAmount(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)
	params := callbackParams(order, "success")

	raw := fmt.Sprintf(`{"key":%q,"txnid":%q,"amount":%s,"productinfo":%q,"firstname":"Jane","email":"jane@example.com","udf1":%q,"status":"success","hash":%q}`,
		params[payu.FieldKey], params[payu.FieldTxnID], params[payu.FieldAmount], params[payu.FieldProductInfo], params[payu.FieldUDF1], params[payu.FieldHash])
	req := httptest.NewRequest(http.MethodPost, "/api/orders/verify-payment", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	w := call(e.h.PaymentCallback, req, "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestPaymentCallback_Errors(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)

	tampered := callbackParams(order, "success")
	tampered[payu.FieldAmount] = "1.00"

	unknown := callbackParams(&models.Order{ID: "missing", TotalPrice: order.TotalPrice, PaymentResult: order.PaymentResult}, "success")

	tests := []struct {
		name   string
		params payu.Params
		want   int
	}{
		{"tampered amount", tampered, http.StatusBadRequest},
		{"unknown order", unknown, http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := call(e.h.PaymentCallback, formRequest("/api/payments/payu/callback", tt.params), "", "", nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	stored, err := e.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReceived, stored.Status)
	assert.False(t, stored.IsPaid)
}

func TestGetOrder(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)
	params := gin.Params{{Key: "id", Value: order.ID}}

	w := call(e.h.GetOrder, httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID, nil), buyerID, "User", params)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(e.h.GetOrder, httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID, nil), "someone-else", "User", params)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(e.h.GetOrder, httptest.NewRequest(http.MethodGet, "/api/orders/"+order.ID, nil), "admin-1", models.RoleAdmin, params)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMyOrders(t *testing.T) {
	e := newEnv(t)
	e.gatewayOrder(t)
	e.gatewayOrder(t)

	w := call(e.h.GetMyOrders, httptest.NewRequest(http.MethodGet, "/api/orders/myorders", nil), buyerID, "User", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []*models.Order `json:"orders"`
		Count  int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = call(e.h.GetMyOrders, httptest.NewRequest(http.MethodGet, "/api/orders/myorders", nil), "nobody", "User", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orders":[]`)
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	e.gatewayOrder(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"defaults", "", http.StatusOK},
		{"paged", "?limit=1&offset=0", http.StatusOK},
		{"by status", "?status=Order%20Received", http.StatusOK},
		{"bad limit", "?limit=ten", http.StatusBadRequest},
		{"limit clamped", "?limit=1000", http.StatusOK},
		{"negative offset", "?offset=-1", http.StatusBadRequest},
		{"unknown status", "?status=Lost", http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := call(e.h.ListOrders, httptest.NewRequest(http.MethodGet, "/api/orders"+tt.query, nil), "admin-1", models.RoleAdmin, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)
	params := gin.Params{{Key: "id", Value: order.ID}}

	w := call(e.h.UpdateOrderStatus, jsonRequest(t, http.MethodPut, "/api/orders/"+order.ID+"/status", gin.H{"status": "Processing"}), "admin-1", models.RoleAdmin, params)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)

	w = call(e.h.UpdateOrderStatus, jsonRequest(t, http.MethodPut, "/api/orders/"+order.ID+"/status", gin.H{"status": "Order Received"}), "admin-1", models.RoleAdmin, params)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(e.h.UpdateOrderStatus, jsonRequest(t, http.MethodPut, "/api/orders/missing/status", gin.H{"status": "Processing"}), "admin-1", models.RoleAdmin, gin.Params{{Key: "id", Value: "missing"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNotifications(t *testing.T) {
	e := newEnv(t)
	order := e.gatewayOrder(t)

	_, err := e.svc.UpdateOrderStatus(context.Background(), order.ID, &models.UpdateOrderStatusRequest{Status: models.OrderStatusProcessing})
	require.NoError(t, err)
	e.svc.Wait()

	w := call(e.h.ListNotifications, httptest.NewRequest(http.MethodGet, "/api/notifications", nil), buyerID, "User", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}
