package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})

	HTTPLatencyMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	// CallbackOutcomes counts gateway callbacks by result.
	CallbackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "callbacks_total",
		Help:      "Gateway callbacks by outcome.",
	}, []string{"outcome"})

	SignatureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "signature_rejections_total",
		Help:      "Gateway callbacks rejected for an invalid hash.",
	})

	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "created_total",
		Help:      "Orders created by payment kind.",
	}, []string{"payment_kind"})

	DeclaredTotalMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "declared_total_mismatches_total",
		Help:      "Checkouts whose client-declared totals differed from the recomputed totals.",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "status_transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"from", "to"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "order_lookups_total",
		Help:      "Order cache lookups by result.",
	}, []string{"result"})

	SideEffects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "side_effects",
		Name:      "total",
		Help:      "Email and notification side effects by kind and result.",
	}, []string{"kind", "result"})
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPLatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}
