package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_http_requests_total",
			Help: "Total number of HTTP requests processed by the comms service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comms_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comms_ws_active_sessions",
			Help: "Number of active websocket sessions.",
		},
		[]string{"kind"},
	)
	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_ws_frames_total",
			Help: "Total number of inbound websocket frames.",
		},
		[]string{"kind", "type"},
	)
	hubPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_hub_published_total",
			Help: "Total number of frames published to the hub.",
		},
	)
	hubDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_hub_delivered_total",
			Help: "Total number of frames enqueued to subscribers.",
		},
	)
	hubEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_hub_evicted_subscribers_total",
			Help: "Total number of subscribers evicted on backpressure.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveSessions,
		wsFramesTotal,
		hubPublishedTotal,
		hubDeliveredTotal,
		hubEvictedTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) { wsActiveSessions.WithLabelValues(kind).Inc() }

func DecWSActive(kind string) { wsActiveSessions.WithLabelValues(kind).Dec() }

func IncWSFrame(kind, frameType string) { wsFramesTotal.WithLabelValues(kind, frameType).Inc() }

func IncHubPublished() { hubPublishedTotal.Inc() }

func IncHubDelivered() { hubDeliveredTotal.Inc() }

func IncHubEvicted() { hubEvictedTotal.Inc() }
