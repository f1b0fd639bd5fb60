package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	CheckupEventsTotal *prometheus.CounterVec
	ReportsGenerated   prometheus.Counter
	ImageBytesStored   prometheus.Counter
}

// NewCollector registers on its own registry so several collectors can
// coexist, as they do in tests.
func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		CheckupEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "checkups",
			Name:      "events_total",
			Help:      "Checkup lifecycle events by type and resulting status.",
		}, []string{"type", "status"}),

		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "checkups",
			Name:      "reports_generated_total",
			Help:      "Total PDF reports rendered.",
		}),

		ImageBytesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "checkups",
			Name:      "image_bytes_stored_total",
			Help:      "Total bytes of checkup images accepted.",
		}),
	}
}

// Publish counts a lifecycle event. It lets the collector sit behind the
// event dispatcher like any other sink.
func (c *Collector) Publish(_ context.Context, ev models.CheckupEvent) error {
	c.CheckupEventsTotal.WithLabelValues(string(ev.Type), string(ev.Status)).Inc()
	return nil
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
