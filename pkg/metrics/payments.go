package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts intent creation and verification outcomes per payable kind.
// Outcome labels are error codes, or "ok".
type PaymentMetrics struct {
	intents       *prometheus.CounterVec
	verifications *prometheus.CounterVec
	limiterDenied *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kilnpay_payment_intents_total",
		Help: "Order-intent creation attempts by payable kind and outcome.",
	}, []string{"kind", "outcome"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kilnpay_payment_verifications_total",
		Help: "Payment verification attempts by payable kind and outcome.",
	}, []string{"kind", "outcome"})
	limiterDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kilnpay_payment_verification_throttled_total",
		Help: "Verification attempts rejected by the attempt limiter.",
	}, []string{"kind"})
	reg.MustRegister(intents, verifications, limiterDenied)
	return &PaymentMetrics{
		intents:       intents,
		verifications: verifications,
		limiterDenied: limiterDenied,
	}
}

func (m *PaymentMetrics) IncIntent(kind, outcome string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncVerification(kind, outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncThrottled(kind string) {
	if m == nil || m.limiterDenied == nil {
		return
	}
	m.limiterDenied.WithLabelValues(normalizeLabel(kind)).Inc()
}
