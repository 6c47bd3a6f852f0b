package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWebhook_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhook(reg)

	m.Observe("invoice.paid", OutcomeProcessed, 20*time.Millisecond)
	m.Observe("invoice.paid", OutcomeProcessed, 30*time.Millisecond)
	m.Observe("invoice.paid", OutcomeDuplicate, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("invoice.paid", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("invoice.paid", OutcomeDuplicate)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestWebhook_NilIsNoop(t *testing.T) {
	var m *Webhook
	assert.NotPanics(t, func() { m.Observe("invoice.paid", OutcomeFailed, time.Second) })
}
