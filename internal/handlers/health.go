package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

var startTime = time.Now()

const readinessTimeout = 2 * time.Second

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// Ready handles GET /ready. Every registered dependency must answer a ping.
func (h *Handlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	results := gin.H{}
	ready := true
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			ready = false
			results[check.Name] = err.Error()
			h.logger.Warn("Readiness check failed", logging.Fields{
				"check": check.Name,
				"error": err.Error(),
			})
			continue
		}
		results[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"service": serviceName,
			"checks":  results,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": serviceName,
		"checks":  results,
	})
}

// Live handles GET /live
func (h *Handlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "alive",
		"uptime_seconds": time.Since(startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
	})
}
