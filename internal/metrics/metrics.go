// Package metrics exposes server counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calc"

// Close reasons used as the "reason" label.
const (
	ReasonPeerClosed = "peer_closed"
	ReasonError      = "error"
	ReasonShutdown   = "shutdown"
)

// Metrics holds the collectors updated by the event loop. Every method is
// safe to call from the loop while the admin endpoint scrapes concurrently.
type Metrics struct {
	Registry *prometheus.Registry

	accepted     prometheus.Counter
	active       prometheus.Gauge
	closed       *prometheus.CounterVec
	frames       *prometheus.CounterVec
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	stray        prometheus.Counter
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently in the registry",
		}),

		closed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Total number of torn down connections by reason",
		}, []string{"reason"}),

		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of evaluated request frames by result",
		}, []string{"result"}),

		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total bytes read from clients",
		}),

		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Total bytes written to clients",
		}),

		stray: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stray_events_total",
			Help:      "Readiness events for descriptors no longer registered",
		}),
	}
}

func (m *Metrics) ConnectionAccepted() {
	m.accepted.Inc()
	m.active.Inc()
}

func (m *Metrics) ConnectionClosed(reason string) {
	m.closed.WithLabelValues(reason).Inc()
	m.active.Dec()
}

// FrameEvaluated counts one response, labelled by whether evaluation failed.
func (m *Metrics) FrameEvaluated(failed bool) {
	if failed {
		m.frames.WithLabelValues("error").Inc()
		return
	}
	m.frames.WithLabelValues("ok").Inc()
}

func (m *Metrics) BytesRead(n int) {
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) BytesWritten(n int) {
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) StrayEvent() {
	m.stray.Inc()
}
