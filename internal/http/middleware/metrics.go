package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that hit no registered route, so scanners
// probing random paths cannot blow up series count.
const unmatchedRoute = "unmatched"

// HTTPMetrics instruments the ops API. Labels are method, the registered
// route template and the status code.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics creates the collectors and registers them on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodaft",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by the ops API.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autodaft",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Ops API request latency.",
			// Ops calls are DB pings and small JSON documents.
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autodaft",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Ops API requests currently being served.",
		}),
	}
	reg.MustRegister(m.requests, m.latency, m.inFlight)
	return m
}

// Handler returns the instrumenting middleware. /metrics itself is mounted
// separately with promhttp.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inFlight.Inc()
		start := time.Now()
		defer func() {
			m.inFlight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
			m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		}()
		c.Next()
	}
}
