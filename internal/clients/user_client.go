package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var (
	_ interfaces.UserDirectory = (*HTTPUserClient)(nil)
	_ interfaces.UserDirectory = (*MockUserClient)(nil)
)

// HTTPUserClient resolves buyer details from the user service.
type HTTPUserClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	logger     *logging.LoggerV2
}

// NewHTTPUserClient creates a new HTTP-based user client.
func NewHTTPUserClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPUserClient {
	return &HTTPUserClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// GetUser retrieves a user by ID using the v2 API. An unknown user is (nil, nil).
func (c *HTTPUserClient) GetUser(ctx context.Context, userID string) (*models.User, error) {
	c.logger.Debug("Fetching user", logging.Fields{"user_id": userID})

	endpoint := fmt.Sprintf("%s/api/v2/users/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	c.setHeaders(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to fetch user", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service returned status %d", resp.StatusCode)
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}

	c.logger.Debug("User fetched", logging.Fields{"user_id": user.ID})

	return &user, nil
}

func (c *HTTPUserClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if requestID := middleware.RequestIDFrom(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
}

// MockUserClient is a mock implementation for testing.
type MockUserClient struct {
	mu    sync.RWMutex
	users map[string]*models.User
	err   error
}

// NewMockUserClient creates a mock user client.
func NewMockUserClient() *MockUserClient {
	return &MockUserClient{
		users: make(map[string]*models.User),
	}
}

func (m *MockUserClient) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	if user, ok := m.users[userID]; ok {
		u := *user
		return &u, nil
	}
	return nil, nil
}

func (m *MockUserClient) AddUser(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// FailWith makes every lookup return err.
func (m *MockUserClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
