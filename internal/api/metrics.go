package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests by method and status class.",
}, []string{"method", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "bazaar",
	Subsystem: "http",
	Name:      "request_duration_ms",
	Help:      "HTTP request latency in milliseconds.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
}, []string{"method"})

var tradesCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "trades",
	Name:      "created_total",
	Help:      "Total trades opened.",
})

var tradesCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "trades",
	Name:      "cancelled_total",
	Help:      "Total trades cancelled by a counterparty.",
})

var tradesCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "trades",
	Name:      "completed_total",
	Help:      "Total trades settled with a verified on-chain transfer.",
})

var tradesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "trades",
	Name:      "rejected_total",
	Help:      "Total trade completions rejected, by reason.",
}, []string{"reason"})

var limiterRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "http",
	Name:      "limiter_rejections_total",
	Help:      "Total requests rejected by the rate limiter or a content cooldown.",
}, []string{"kind"})

var agentsRegistered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "agents",
	Name:      "registered_total",
	Help:      "Total agents registered.",
})

// countRequests records per-request counters and latency.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		statusClass := strconv.Itoa(ww.Status()/100) + "xx"
		requestsTotal.WithLabelValues(r.Method, statusClass).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(float64(time.Since(start).Milliseconds()))
	})
}
