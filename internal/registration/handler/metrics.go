package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regRecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regsrv_records_total",
		Help: "Number of subscribed domain records.",
	})

	regRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regsrv_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	regRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regsrv_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	regRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regsrv_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		regRequestsTotal.WithLabelValues(method, path, status).Inc()
		regRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// SetRecordsGauge sets the subscribed record count gauge.
func SetRecordsGauge(count float64) {
	regRecordsTotal.Set(count)
}
