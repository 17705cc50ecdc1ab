package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// CreateOrder handles POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind request", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	requester := middleware.Requester(c)

	result, err := h.orderService.CreateOrder(c.Request.Context(), requester.UserID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetMyOrders handles GET /api/orders/myorders
func (h *Handlers) GetMyOrders(c *gin.Context) {
	requester := middleware.Requester(c)

	orders, err := h.orderService.ListMyOrders(c.Request.Context(), requester.UserID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": nonNil(orders),
		"count":  len(orders),
	})
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID, middleware.Requester(c))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	filter := &models.OrderListFilter{}

	if status := c.Query("status"); status != "" {
		s := models.OrderStatus(status)
		filter.Status = &s
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			handleError(c, errors.NewValidationError("limit", "limit must be an integer"))
			return
		}
		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			handleError(c, errors.NewValidationError("offset", "offset must be an integer"))
			return
		}
		filter.Offset = offset
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": nonNil(orders),
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetUserOrders handles GET /api/orders/user/:userId
func (h *Handlers) GetUserOrders(c *gin.Context) {
	userID := c.Param("userId")

	orders, err := h.orderService.ListOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": nonNil(orders),
		"count":  len(orders),
	})
}

// UpdateOrderStatus handles PUT /api/orders/:id/status
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), orderID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	requester := middleware.Requester(c)

	notifications, err := h.orderService.ListNotifications(c.Request.Context(), requester.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func nonNil(orders []*models.Order) []*models.Order {
	if orders == nil {
		return []*models.Order{}
	}
	return orders
}

func handleError(c *gin.Context, err error) {
	var validationErr *errors.ValidationError

	switch {
	case errors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationErr.Message,
			"details": validationErr.Details,
		})
	case errors.Is(err, errors.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, errors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
