package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "tecnoshop"

// CheckoutMetrics records outcomes of the checkout pipeline.
type CheckoutMetrics struct {
	duration    *prometheus.HistogramVec
	outcomes    *prometheus.CounterVec
	refunds     prometheus.Counter
	reconcile   prometheus.Counter
	stockShorts prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricNamespace,
		Name:      "checkout_duration_seconds",
		Help:      "End-to-end duration of checkout attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      "checkout_outcomes_total",
		Help:      "Checkout attempts by terminal outcome.",
	}, []string{"outcome"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      "checkout_compensating_refunds_total",
		Help:      "Refunds issued because the order could not be persisted after charging.",
	})
	reconcile := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      "checkout_reconciliation_required_total",
		Help:      "Charges left dangling after both persistence and refund failed.",
	})
	stockShorts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      "checkout_insufficient_stock_total",
		Help:      "Checkout attempts rejected for insufficient stock.",
	})
	reg.MustRegister(duration, outcomes, refunds, reconcile, stockShorts)
	return &CheckoutMetrics{
		duration:    duration,
		outcomes:    outcomes,
		refunds:     refunds,
		reconcile:   reconcile,
		stockShorts: stockShorts,
	}
}

// ObserveAttempt records one checkout attempt with its outcome label.
func (c *CheckoutMetrics) ObserveAttempt(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
	c.outcomes.WithLabelValues(label).Inc()
}

// IncCompensatingRefund counts a refund issued to undo a charge.
func (c *CheckoutMetrics) IncCompensatingRefund() {
	if c == nil || c.refunds == nil {
		return
	}
	c.refunds.Inc()
}

// IncReconciliationRequired counts charges needing manual reconciliation.
func (c *CheckoutMetrics) IncReconciliationRequired() {
	if c == nil || c.reconcile == nil {
		return
	}
	c.reconcile.Inc()
}

// IncInsufficientStock counts checkouts rejected by the inventory ledger.
func (c *CheckoutMetrics) IncInsufficientStock() {
	if c == nil || c.stockShorts == nil {
		return
	}
	c.stockShorts.Inc()
}
