package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotifierMetrics tracks e-mail delivery attempts made by the notifier worker.
type NotifierMetrics struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	if reg == nil {
		return &NotifierMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kilnpay_notification_deliveries_total",
		Help: "Notification delivery attempts by event kind and outcome (delivered, retry, terminal).",
	}, []string{"kind", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kilnpay_notification_send_seconds",
		Help:    "Latency of e-mail provider calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(deliveries, latency)
	return &NotifierMetrics{deliveries: deliveries, latency: latency}
}

func (m *NotifierMetrics) IncDelivery(kind, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *NotifierMetrics) ObserveSend(kind string, d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}
