package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConversationMetrics records conversation, classification and store metrics into
// its own registry, served from /metrics.
type ConversationMetrics struct {
	registry               *prometheus.Registry
	eventsTotal            *prometheus.CounterVec
	classificationsTotal   *prometheus.CounterVec
	classificationDuration *prometheus.HistogramVec
	storeConflictsTotal    *prometheus.CounterVec
	reportsSubmittedTotal  prometheus.Counter
}

// NewConversationMetrics creates the collectors on a fresh registry so several
// instances (tests, multiple containers) never collide on registration.
func NewConversationMetrics() *ConversationMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &ConversationMetrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpcy_conversation_events_total",
				Help: "Conversation events handled by type, source and outcome",
			},
			[]string{"event_type", "source", "outcome"},
		),
		classificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpcy_classifications_total",
				Help: "Classification results by provider, mode and outcome (ok, corrected, fallback)",
			},
			[]string{"provider", "mode", "outcome"},
		),
		classificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helpcy_classification_duration_seconds",
				Help:    "Duration of classification calls including fallback handling",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "mode"},
		),
		storeConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpcy_draft_store_conflicts_total",
				Help: "Optimistic merge conflicts by result (retried, exhausted)",
			},
			[]string{"result"},
		),
		reportsSubmittedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "helpcy_reports_submitted_total",
				Help: "Reports submitted",
			},
		),
	}
}

// ObserveEvent records one handled conversation event.
func (m *ConversationMetrics) ObserveEvent(eventType, source, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, source, outcome).Inc()
}

// ObserveClassification records one classification call.
func (m *ConversationMetrics) ObserveClassification(provider, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(provider, mode, outcome).Inc()
	m.classificationDuration.WithLabelValues(provider, mode).Observe(duration.Seconds())
}

// IncStoreConflict records a compare-and-swap conflict in the draft store.
func (m *ConversationMetrics) IncStoreConflict(result string) {
	if m == nil {
		return
	}
	m.storeConflictsTotal.WithLabelValues(result).Inc()
}

// IncReportsSubmitted records a successful submission.
func (m *ConversationMetrics) IncReportsSubmitted() {
	if m == nil {
		return
	}
	m.reportsSubmittedTotal.Inc()
}

// StoreConflicts exposes the conflict counter for tests.
func (m *ConversationMetrics) StoreConflicts() *prometheus.CounterVec {
	return m.storeConflictsTotal
}

// Registry exposes the underlying registry for tests and custom exposition.
func (m *ConversationMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *ConversationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
