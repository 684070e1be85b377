// Package metric exposes prometheus counters of pipeline activity.
package metric

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BuffersTotal counts buffers handled by elements.
	BuffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_element_buffers_total",
		Help: "Total number of buffers handled by element factory",
	}, []string{"factory"})

	// BytesTotal counts bytes handled by elements.
	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_element_bytes_total",
		Help: "Total number of bytes handled by element factory",
	}, []string{"factory"})

	// BusMessagesTotal counts messages posted on buses.
	BusMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_bus_messages_total",
		Help: "Total number of bus messages by type",
	}, []string{"type"})

	// StateTransitionsTotal counts pipeline state steps.
	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_state_transitions_total",
		Help: "Total number of pipeline state changes",
	}, []string{"from", "to"})

	// DroppedTotal counts buffers dropped by elements.
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidpipe_element_dropped_total",
		Help: "Total number of buffers dropped by element factory",
	}, []string{"factory", "reason"})

	// RenderLateness observes how late sinks render synchronised buffers.
	RenderLateness = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidpipe_render_lateness_seconds",
		Help:    "Lateness of synchronised buffers at render time",
		Buckets: []float64{0.001, 0.005, 0.02, 0.05, 0.1, 0.5, 1},
	}, []string{"factory"})
)

// Buffer records a buffer of size bytes handled by element.
func Buffer(factory string, size int) {
	BuffersTotal.WithLabelValues(factory).Inc()
	BytesTotal.WithLabelValues(factory).Add(float64(size))
}

// Dropped records a buffer dropped by element.
func Dropped(factory, reason string) {
	DroppedTotal.WithLabelValues(factory, reason).Inc()
}

// BusMessage records a posted message.
func BusMessage(messageType string) {
	BusMessagesTotal.WithLabelValues(messageType).Inc()
}

// StateTransition records a pipeline state step.
func StateTransition(from, to string) {
	StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// Lateness records render lateness of synchronised buffer.
func Lateness(factory string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	RenderLateness.WithLabelValues(factory).Observe(d.Seconds())
}

// Handler returns HTTP handler which serves metrics and liveness probe.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
