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
			Name: "calsync_http_requests_total",
			Help: "Total number of HTTP requests processed by the admin server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calsync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calsync_sessions_active",
			Help: "Number of live client sessions.",
		},
		[]string{"transport"},
	)
	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_session_events_total",
			Help: "Total number of session lifecycle events.",
		},
		[]string{"transport", "event"},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_requests_total",
			Help: "Total number of protocol requests by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calsync_request_duration_seconds",
			Help:    "Protocol request handling latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_pushes_total",
			Help: "Total number of server pushes by kind and result.",
		},
		[]string{"kind", "result"},
	)
	persistTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_persist_total",
			Help: "Total number of whole-state saves by result.",
		},
		[]string{"result"},
	)
	persistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calsync_persist_duration_seconds",
			Help:    "Whole-state save latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	storeEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calsync_store_entities",
			Help: "Number of entities held by the store.",
		},
		[]string{"collection"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		sessionsActive,
		sessionEventsTotal,
		requestsTotal,
		requestDuration,
		pushesTotal,
		persistTotal,
		persistDuration,
		storeEntities,
		amqpPublishErrorsTotal,
	)
}

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

func IncSessionActive(transport string) {
	sessionsActive.WithLabelValues(transport).Inc()
}

func DecSessionActive(transport string) {
	sessionsActive.WithLabelValues(transport).Dec()
}

func IncSessionEvent(transport, event string) {
	sessionEventsTotal.WithLabelValues(transport, event).Inc()
}

// ObserveRequest records one handled request. outcome is "ok" or the error class.
func ObserveRequest(kind, outcome string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(kind, outcome).Inc()
	requestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func IncPush(kind, result string) {
	pushesTotal.WithLabelValues(kind, result).Inc()
}

func ObservePersist(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	persistTotal.WithLabelValues(result).Inc()
	persistDuration.Observe(elapsed.Seconds())
}

func SetStoreEntities(counts map[string]int) {
	for collection, n := range counts {
		storeEntities.WithLabelValues(collection).Set(float64(n))
	}
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
