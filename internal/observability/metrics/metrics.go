package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters/histograms for backend calls, workflow operations and note exports.
type Metrics struct {
	backendTotal   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	operationTotal *prometheus.CounterVec
	noteCopyTotal  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "previsit",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total scheduling backend requests",
		}, []string{"endpoint", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "previsit",
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "Latency of scheduling backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		operationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "previsit",
			Subsystem: "workflow",
			Name:      "operations_total",
			Help:      "Workflow operations by outcome",
		}, []string{"operation", "outcome"}),
		noteCopyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "previsit",
			Subsystem: "note",
			Name:      "copy_total",
			Help:      "Combined note clipboard exports",
		}, []string{"success"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendTotal, m.backendLatency, m.operationTotal, m.noteCopyTotal)
	return m
}

// ObserveBackend records one backend round trip. status is the HTTP status, or 0 for transport errors.
func (m *Metrics) ObserveBackend(endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendTotal.WithLabelValues(endpoint, label).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operationTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveNoteCopy(success bool) {
	if m == nil {
		return
	}
	m.noteCopyTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}
