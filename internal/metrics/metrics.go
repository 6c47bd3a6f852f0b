// Package metrics описывает метрики Prometheus сервиса приёма вебхуков.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обработки события.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeUnhandled = "unhandled"
	OutcomeFailed    = "failed"
)

// Webhook — счётчики и гистограммы обработки событий провайдера.
type Webhook struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewWebhook регистрирует метрики в registerer. nil означает prometheus.DefaultRegisterer.
func NewWebhook(registerer prometheus.Registerer) *Webhook {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lectio",
		Name:      "webhook_events_total",
		Help:      "Payment provider events by type and outcome.",
	}, []string{"type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lectio",
		Name:      "webhook_event_duration_seconds",
		Help:      "Time spent reconciling a payment provider event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	registerer.MustRegister(events, duration)
	return &Webhook{events: events, duration: duration}
}

// Observe учитывает одно обработанное событие.
func (w *Webhook) Observe(eventType, outcome string, elapsed time.Duration) {
	if w == nil {
		return
	}
	w.events.WithLabelValues(eventType, outcome).Inc()
	w.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}
