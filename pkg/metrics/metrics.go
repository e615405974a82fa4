// Package metrics exposes Prometheus instrumentation for the sayhi servers.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/Suhaibinator/sayhi/pkg/common"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a Prometheus registry and the per-route HTTP metrics.
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	responses *prometheus.CounterVec
}

// NewCollector creates a Collector registering its metrics under namespace.
// A nil registry gets a fresh one with the Go and process collectors attached.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_stamped_total",
			Help:      "Responses by route and whether they carried the middleware: after stamp.",
		}, []string{"route", "stamped"}),
	}
	registry.MustRegister(c.requests, c.duration, c.inFlight, c.responses)
	return c
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware instruments a route. It should wrap every other middleware so the
// status code and headers it observes are the ones sent to the client.
func (c *Collector) Middleware(route string) common.Middleware {
	labels := prometheus.Labels{"route": route}
	requests := c.requests.MustCurryWith(labels)
	duration := c.duration.MustCurryWith(labels)
	stamped := c.responses.MustCurryWith(labels)

	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			stamped.WithLabelValues(strconv.FormatBool(w.Header().Get(middleware.SayHiHeader) == middleware.SayHiAfter)).Inc()
		})
		return promhttp.InstrumentHandlerInFlight(c.inFlight,
			promhttp.InstrumentHandlerDuration(duration,
				promhttp.InstrumentHandlerCounter(requests, counted)))
	}
}

// RegisterCounterFunc exposes a monotonically increasing value read from fn
func (c *Collector) RegisterCounterFunc(namespace, name, help string, fn func() float64) error {
	return c.registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
