package metrics

import (
	"fmt"
	"net/http"

	"github.com/lonelysadness/proconn/pkg/proconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const eventKindLabel = "event_kind"

var _ proconn.Metrics = (*PrometheusMetric)(nil)

// PrometheusMetric counts what the proc connector receive loop sees.
type PrometheusMetric struct {
	datagramCounter      prometheus.Counter
	datagramBytesCounter prometheus.Counter
	eventCounter         *prometheus.CounterVec
	droppedCounter       *prometheus.CounterVec
	ignoredCounter       prometheus.Counter

	// Labels are resolved once per kind instead of on every event.
	events  map[proconn.Kind]prometheus.Counter
	dropped map[proconn.Kind]prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewPrometheusMetric registers the counters with reg. A nil reg uses a
// fresh registry.
func NewPrometheusMetric(reg *prometheus.Registry) *PrometheusMetric {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &PrometheusMetric{
		datagramCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "proconn_datagrams_total",
			Help: "Number of datagrams received from the proc connector",
		}),
		datagramBytesCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "proconn_datagram_bytes_total",
			Help: "Number of bytes received from the proc connector",
		}),
		eventCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proconn_events_total",
			Help: "Number of events delivered to a handler",
		}, []string{eventKindLabel}),
		droppedCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proconn_events_dropped_total",
			Help: "Number of events dropped because no handler was registered for their kind",
		}, []string{eventKindLabel}),
		ignoredCounter: factory.NewCounter(prometheus.CounterOpts{
			Name: "proconn_messages_ignored_total",
			Help: "Number of messages with an unknown tag or a truncated payload",
		}),
		events:   make(map[proconn.Kind]prometheus.Counter, len(proconn.Kinds)),
		dropped:  make(map[proconn.Kind]prometheus.Counter, len(proconn.Kinds)),
		gatherer: reg,
	}

	for _, k := range proconn.Kinds {
		m.events[k] = m.eventCounter.WithLabelValues(k.String())
		m.dropped[k] = m.droppedCounter.WithLabelValues(k.String())
	}
	return m
}

func (p *PrometheusMetric) ObserveDatagram(bytes int) {
	p.datagramCounter.Inc()
	p.datagramBytesCounter.Add(float64(bytes))
}

func (p *PrometheusMetric) ObserveEvent(kind proconn.Kind) {
	if c, ok := p.events[kind]; ok {
		c.Inc()
	}
}

func (p *PrometheusMetric) ObserveDropped(kind proconn.Kind) {
	if c, ok := p.dropped[kind]; ok {
		c.Inc()
	}
}

func (p *PrometheusMetric) ObserveIgnored(uint32) {
	p.ignoredCounter.Inc()
}

// Handler serves the registered metrics.
func (p *PrometheusMetric) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// ListenAndServe serves Handler on addr under /metrics.
func (p *PrometheusMetric) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("serving metrics on %s: %w", addr, err)
	}
	return nil
}
