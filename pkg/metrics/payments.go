package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records checkout outcomes, webhook traffic, and gateway
// latency.
type PaymentMetrics struct {
	checkouts       *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	stockRejections prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by final status.",
	}, []string{"status"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook events by outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	stockRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_rejections_total",
		Help: "Checkouts rejected for insufficient stock.",
	})
	reg.MustRegister(checkouts, webhookEvents, gatewayDuration, stockRejections)
	return &PaymentMetrics{
		checkouts:       checkouts,
		webhookEvents:   webhookEvents,
		gatewayDuration: gatewayDuration,
		stockRejections: stockRejections,
	}
}

// IncCheckout counts a checkout attempt that ended in the given status.
func (m *PaymentMetrics) IncCheckout(status string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncWebhookEvent counts a webhook delivery by processing outcome.
func (m *PaymentMetrics) IncWebhookEvent(outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the duration of a gateway call.
func (m *PaymentMetrics) ObserveGateway(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncStockRejection counts a checkout turned away for lack of stock.
func (m *PaymentMetrics) IncStockRejection() {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
