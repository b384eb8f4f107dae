package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the domain counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeDuplicate   = "duplicate"
	OutcomeRejected    = "rejected"
)

// DomainMetrics counts generation, backend and credit outcomes.
type DomainMetrics struct {
	generationStarts *prometheus.CounterVec
	generationSyncs  *prometheus.CounterVec
	backendCalls     *prometheus.CounterVec
	creditGrants     *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
	deadLetters      *prometheus.GaugeVec
}

// NewDomainMetrics registers the collectors on reg. A nil reg yields a no-op recorder.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		generationStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_starts_total",
			Help: "Generation submissions by type and outcome.",
		}, []string{"type", "outcome"}),
		generationSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_syncs_total",
			Help: "Status sync calls that reached the backend, by resulting status.",
		}, []string{"backend", "status"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Calls to generation backends by operation and outcome.",
		}, []string{"backend", "op", "outcome"}),
		creditGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_grants_total",
			Help: "Payment grant attempts by entry point and outcome.",
		}, []string{"source", "outcome"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox publish attempts by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		deadLetters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outbox_dead_letters",
			Help: "Ledger events parked in the outbox dead-letter table, by event type.",
		}, []string{"event_type"}),
	}
	reg.MustRegister(m.generationStarts, m.generationSyncs, m.backendCalls, m.creditGrants, m.outboxPublished, m.deadLetters)
	return m
}

func (m *DomainMetrics) GenerationStarted(genType, outcome string) {
	if m == nil || m.generationStarts == nil {
		return
	}
	m.generationStarts.WithLabelValues(normalizeLabel(genType), outcome).Inc()
}

func (m *DomainMetrics) GenerationSynced(backend, status string) {
	if m == nil || m.generationSyncs == nil {
		return
	}
	m.generationSyncs.WithLabelValues(normalizeLabel(backend), normalizeLabel(status)).Inc()
}

func (m *DomainMetrics) BackendCall(backend, op, outcome string) {
	if m == nil || m.backendCalls == nil {
		return
	}
	m.backendCalls.WithLabelValues(normalizeLabel(backend), op, outcome).Inc()
}

func (m *DomainMetrics) CreditGrant(source, outcome string) {
	if m == nil || m.creditGrants == nil {
		return
	}
	m.creditGrants.WithLabelValues(normalizeLabel(source), outcome).Inc()
}

func (m *DomainMetrics) OutboxPublished(eventType, outcome string) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *DomainMetrics) OutboxDeadLetters(eventType string, total int64) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(eventType)).Set(float64(total))
}
