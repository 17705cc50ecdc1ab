package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

func newUserServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/api/v2/users/user-1":
			assert.Equal(t, "req-42", r.Header.Get(middleware.HeaderRequestID))
			json.NewEncoder(w).Encode(models.User{ID: "user-1", Name: "Jane Doe", Email: "jane@example.com"})
		case "/api/v2/users/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPUserClient_GetUser(t *testing.T) {
	srv := newUserServer(t)
	client := NewHTTPUserClient(config.ServiceConfig{
		BaseURL: srv.URL,
		Timeout: time.Second,
		APIKey:  "svc-key",
	}, logging.NewLoggerV2("user-client-test"))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	user, err := client.GetUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jane@example.com", user.Email)

	user, err = client.GetUser(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, user)

	_, err = client.GetUser(context.Background(), "broken")
	assert.Error(t, err)
}

func TestNewMailer(t *testing.T) {
	logger := logging.NewLoggerV2("mailer-test")

	tests := []struct {
		name    string
		cfg     config.EmailConfig
		want    interface{}
		wantErr bool
	}{
		{"default is log", config.EmailConfig{}, &LogMailer{}, false},
		{"sendgrid", config.EmailConfig{Provider: "sendgrid", SendGridAPIKey: "SG.key", From: "shop@example.com"}, &SendGridMailer{}, false},
		{"sendgrid without key", config.EmailConfig{Provider: "sendgrid"}, nil, true},
		{"postmark", config.EmailConfig{Provider: "Postmark", PostmarkServerToken: "pm-token"}, &PostmarkMailer{}, false},
		{"postmark without token", config.EmailConfig{Provider: "postmark"}, nil, true},
		{"unknown", config.EmailConfig{Provider: "smtp"}, nil, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mailer, err := NewMailer(tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, mailer)
		})
	}
}

func TestMockMailer(t *testing.T) {
	m := NewMockMailer()
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, "a@example.com", "Hello", "<p>hi</p>"))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, "Hello", m.Sent()[0].Subject)

	m.FailWith(assert.AnError)
	err := m.Send(ctx, "a@example.com", "Hello", "<p>hi</p>")

	var delivery *errors.DeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Equal(t, "a@example.com", delivery.Recipient)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, m.Count())
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(logging.NewLoggerV2("mailer-test"))
	assert.NoError(t, m.Send(context.Background(), "a@example.com", "Hello", "<p>hi</p>"))
}
