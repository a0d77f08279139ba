package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	webhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revalidator_webhooks_total",
		Help: "Total number of webhook requests by outcome",
	}, []string{"outcome"})
	gateDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revalidator_gate_decisions_total",
		Help: "Total number of security gate decisions by result",
	}, []string{"decision"})
	invalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revalidator_invalidations_total",
		Help: "Total number of cache invalidation calls by kind and result",
	}, []string{"kind", "result"})
	webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "revalidator_webhook_duration_seconds",
		Help:    "Time spent processing admitted webhook requests",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registers Prometheus collectors. Call once per registry.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(webhooksTotal, gateDecisionsTotal, invalidationsTotal, webhookDuration)
}

// IncWebhook counts a finished webhook request.
func IncWebhook(outcome string) { webhooksTotal.WithLabelValues(outcome).Inc() }

// IncGateDecision counts an admit or a rejection reason.
func IncGateDecision(decision string) { gateDecisionsTotal.WithLabelValues(decision).Inc() }

// IncInvalidation counts one path or tag invalidation attempt.
func IncInvalidation(kind string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	invalidationsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveWebhook records the processing time of an admitted request.
func ObserveWebhook(d time.Duration) { webhookDuration.Observe(d.Seconds()) }
