package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCountsByKindAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncVerification("order", "ok")
	m.IncVerification("order", "ALREADY_PAID")
	m.IncVerification("order", "ALREADY_PAID")
	m.IncIntent("custom_order", "ok")
	m.IncThrottled("order")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	fam := findMetricFamily(mfs, "kilnpay_payment_verifications_total")
	if fam == nil {
		t.Fatal("verification counter not registered")
	}
	var alreadyPaid float64
	for _, metric := range fam.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", "ALREADY_PAID") {
			alreadyPaid = metric.GetCounter().GetValue()
		}
	}
	if alreadyPaid != 2 {
		t.Fatalf("expected 2 already-paid verifications, got %f", alreadyPaid)
	}
	if got, err := fetchCounterValue(mfs, "kilnpay_payment_intents_total", "kind", "custom_order"); err != nil || got != 1 {
		t.Fatalf("expected one custom order intent, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "kilnpay_payment_verification_throttled_total", "kind", "order"); err != nil || got != 1 {
		t.Fatalf("expected one throttled verification, got %f err=%v", got, err)
	}
}

func TestNotifierMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotifierMetrics(reg)
	m.IncDelivery("order_confirmed", "delivered")
	m.ObserveSend("order_confirmed", 40*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "kilnpay_notification_deliveries_total", "outcome", "delivered"); err != nil || got != 1 {
		t.Fatalf("expected one delivery, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "kilnpay_notification_send_seconds", "kind", "order_confirmed"); err != nil || got <= 0 {
		t.Fatalf("expected positive latency sum, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var p *PaymentMetrics
	p.IncVerification("order", "ok")
	var n *NotifierMetrics
	n.IncDelivery("order_confirmed", "retry")
	NewPaymentMetrics(nil).IncIntent("order", "ok")
}
