package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carelink_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_transitions_total",
			Help: "Applied workflow transitions",
		},
		[]string{"entity", "to"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		},
		[]string{"bucket"},
	)

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_realtime_events_published_total",
		Help: "Real-time events published",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_realtime_events_dropped_total",
		Help: "Real-time events dropped because a subscriber was full",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carelink_realtime_subscribers",
		Help: "Open real-time subscriptions",
	})

	Payouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_payouts_total",
			Help: "Payout transfer attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
