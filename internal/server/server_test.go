package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payu"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

const jwtSecret = "route-test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0},
		Auth:   config.AuthConfig{JWTSecret: jwtSecret},
		PayU:   config.PayUConfig{MerchantKey: "TESTKEY", Salt: "SALT1"},
		Email:  config.EmailConfig{SendTimeout: time.Second},
	}

	svc := service.NewOrderService(
		repository.NewMemoryOrderRepository(),
		nil,
		payu.NewGateway(cfg.PayU, logging.NewLoggerV2("payu-test")),
		clients.NewMockUserClient(),
		clients.NewMockMailer(),
		repository.NewMemoryNotificationStore(),
		nil,
		cfg,
	)
	t.Cleanup(svc.Wait)

	return New(handlers.NewHandlers(svc, cfg), cfg)
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(jwtSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	user := token(t, "user-1", "User")
	admin := token(t, "admin-1", models.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		body   string
		want   int
	}{
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"live", http.MethodGet, "/live", "", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"my orders needs auth", http.MethodGet, "/api/orders/myorders", "", "", http.StatusUnauthorized},
		{"my orders", http.MethodGet, "/api/orders/myorders", user, "", http.StatusOK},
		{"order not found", http.MethodGet, "/api/orders/missing", user, "", http.StatusNotFound},
		{"list needs admin", http.MethodGet, "/api/orders", user, "", http.StatusForbidden},
		{"list as admin", http.MethodGet, "/api/orders", admin, "", http.StatusOK},
		{"user orders needs admin", http.MethodGet, "/api/orders/user/user-1", user, "", http.StatusForbidden},
		{"user orders as admin", http.MethodGet, "/api/orders/user/user-1", admin, "", http.StatusOK},
		{"status update needs admin", http.MethodPut, "/api/orders/o-1/status", user, `{"status":"Processing"}`, http.StatusForbidden},
		{"status update unknown order", http.MethodPut, "/api/orders/o-1/status", admin, `{"status":"Processing"}`, http.StatusNotFound},
		{"notifications", http.MethodGet, "/api/notifications", user, "", http.StatusOK},
		{"create needs auth", http.MethodPost, "/api/orders", "", `{}`, http.StatusUnauthorized},
		{"callback is public", http.MethodPost, "/api/payments/payu/callback", "", "status=success&hash=bad", http.StatusBadRequest},
		{"verify-payment is public", http.MethodPost, "/api/orders/verify-payment", "", "status=success&hash=bad", http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			switch {
			case strings.HasPrefix(tt.body, "{"):
				req.Header.Set("Content-Type", "application/json")
			case tt.body != "":
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}

			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
		})
	}
}
