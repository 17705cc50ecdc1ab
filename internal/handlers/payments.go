package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payu"
)

// PaymentCallback handles POST /api/payments/payu/callback and
// POST /api/orders/verify-payment. The gateway posts a form; the storefront
// relays the same fields as JSON.
func (h *Handlers) PaymentCallback(c *gin.Context) {
	params, err := bindCallbackParams(c)
	if err != nil {
		h.logger.Error("Failed to bind payment callback", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orderService.HandleGatewayCallback(c.Request.Context(), params)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  order.IsPaid,
		"order_id": order.ID,
		"status":   order.Status,
	})
}

func bindCallbackParams(c *gin.Context) (payu.Params, error) {
	params := payu.Params{}

	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var body map[string]interface{}
		dec := json.NewDecoder(c.Request.Body)
		// Amounts must keep their literal form; the signature covers the text.
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, err
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				params[k] = val
			case json.Number:
				params[k] = val.String()
			case bool:
				if val {
					params[k] = "true"
				} else {
					params[k] = "false"
				}
			case nil:
				params[k] = ""
			}
		}
		return params, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for k, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[k] = values[0]
		}
	}
	return params, nil
}
