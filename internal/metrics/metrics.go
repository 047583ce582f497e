package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. All methods are safe on
// a nil receiver so components can run without instrumentation.
type Metrics struct {
	providerCalls   *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	extractDuration *prometheus.HistogramVec
	batchFiles      *prometheus.CounterVec
	batchesActive   prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// New registers collectors on reg (prometheus.DefaultRegisterer when nil).
// Tests should pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ape",
			Subsystem: "llm",
			Name:      "provider_calls_total",
			Help:      "Adapter attempts by provider, call kind and outcome.",
		}, []string{"provider", "kind", "outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ape",
			Subsystem: "extract",
			Name:      "documents_total",
			Help:      "Extractions by format, method and outcome.",
		}, []string{"format", "method", "outcome"}),
		extractDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ape",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Time spent extracting one document.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		batchFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ape",
			Subsystem: "batch",
			Name:      "files_total",
			Help:      "Batch files by terminal status.",
		}, []string{"status"}),
		batchesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ape",
			Subsystem: "batch",
			Name:      "active",
			Help:      "Batches currently being processed.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ape",
			Subsystem: "batch",
			Name:      "queue_depth",
			Help:      "Batch jobs waiting in the priority queue.",
		}),
	}

	collectors := []prometheus.Collector{m.providerCalls, m.extractions, m.extractDuration, m.batchFiles, m.batchesActive, m.queueDepth}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ProviderAttempt(provider, kind string, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, kind, outcome(err)).Inc()
}

func (m *Metrics) Extraction(format, method string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	o := "ok"
	if failed {
		o = "error"
	}
	m.extractions.WithLabelValues(format, method, o).Inc()
	m.extractDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchFile(status string) {
	if m == nil {
		return
	}
	m.batchFiles.WithLabelValues(status).Inc()
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesActive.Inc()
}

func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.batchesActive.Dec()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
