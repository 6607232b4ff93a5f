package serve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samsaffron/chatstream/internal/sse"
)

// Metrics owns a private prometheus registry. It also observes the stream
// bridge.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	activeStreams prometheus.Gauge
	streamEvents  *prometheus.CounterVec
	disconnects   prometheus.Counter
}

var _ sse.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Streams currently being relayed.",
		}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_stream_events_total",
			Help: "Stream events delivered to consumers.",
		}, []string{"event"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_stream_disconnects_total",
			Help: "Streams whose consumer went away before the end.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.activeStreams,
		m.streamEvents,
		m.disconnects,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, path string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) StreamOpened()            { m.activeStreams.Inc() }
func (m *Metrics) StreamClosed()            { m.activeStreams.Dec() }
func (m *Metrics) EventEmitted(name string) { m.streamEvents.WithLabelValues(name).Inc() }
func (m *Metrics) ConsumerGone()            { m.disconnects.Inc() }
