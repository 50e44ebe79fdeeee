package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the service. Each collector owns its
// registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeRequests      prometheus.Gauge

	cameraStatus   *prometheus.GaugeVec
	ingestMessages *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	prunedRows     prometheus.Counter
}

// New creates a collector with metric names prefixed by the service name
func New(service string) *Collector {
	ns := strings.ReplaceAll(service, "-", "_")
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: ns + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    ns + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	c.activeRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ns + "_active_requests",
		Help: "Number of requests being served",
	})
	c.cameraStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: ns + "_camera_status",
			Help: "Cameras per derived status in the last full camera report",
		},
		[]string{"status"},
	)
	c.ingestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: ns + "_ingest_messages_total",
			Help: "MQTT messages received by topic and outcome",
		},
		[]string{"topic", "result"},
	)
	c.fetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: ns + "_fetch_failures_total",
			Help: "Data source fetches that failed after retries",
		},
		[]string{"source"},
	)
	c.prunedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ns + "_pruned_rows_total",
		Help: "Rows removed by retention pruning",
	})

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.activeRequests,
		c.cameraStatus,
		c.ingestMessages,
		c.fetchFailures,
		c.prunedRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies. endpoint should be the route
// pattern rather than the raw path to keep label cardinality bounded.
func (c *Collector) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		c.activeRequests.Inc()
		defer c.activeRequests.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// ObserveCameraStatuses replaces the per-status gauge with the given counts
func (c *Collector) ObserveCameraStatuses(counts map[string]int) {
	c.cameraStatus.Reset()
	for label, n := range counts {
		c.cameraStatus.WithLabelValues(label).Set(float64(n))
	}
}

// IngestMessage counts one received message
func (c *Collector) IngestMessage(topic string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.ingestMessages.WithLabelValues(topic, result).Inc()
}

// FetchFailure counts a fetch that failed after all retries
func (c *Collector) FetchFailure(source string) {
	c.fetchFailures.WithLabelValues(source).Inc()
}

// Pruned counts rows removed by retention
func (c *Collector) Pruned(n int64) {
	if n > 0 {
		c.prunedRows.Add(float64(n))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
