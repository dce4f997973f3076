package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoiceCalculationTotal counts invoice calculations by outcome.
	InvoiceCalculationTotal *prometheus.CounterVec
	// InvoiceRecalculationTotal counts recalculation checks by outcome (accurate, mismatch, fault).
	InvoiceRecalculationTotal *prometheus.CounterVec
	// InvoiceRecalculationDifference observes the absolute grand total divergence of mismatches.
	InvoiceRecalculationDifference prometheus.Histogram
	// PaymentScheduleTotal counts schedule creation outcomes.
	PaymentScheduleTotal *prometheus.CounterVec
	// PaymentApplicationTotal counts payment application outcomes.
	PaymentApplicationTotal *prometheus.CounterVec
	// InvoiceWarningsTotal counts advisory warnings emitted by calculations.
	InvoiceWarningsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoiceCalculationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_calculation_total",
			Help:      "Count of invoice calculations by outcome.",
		}, []string{"result"})
		InvoiceRecalculationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_recalculation_total",
			Help:      "Count of invoice recalculation checks by outcome.",
		}, []string{"result"})
		InvoiceRecalculationDifference = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_recalculation_difference",
			Help:      "Absolute grand total difference between claimed and recomputed invoices.",
			Buckets:   []float64{0.01, 1, 100, 1000, 10000, 100000, 1000000},
		})
		PaymentScheduleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_schedule_total",
			Help:      "Count of payment schedule creations by outcome.",
		}, []string{"result"})
		PaymentApplicationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_application_total",
			Help:      "Count of applied payments by outcome.",
		}, []string{"result"})
		InvoiceWarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_warnings_total",
			Help:      "Count of advisory warnings emitted by invoice calculations.",
		}, []string{"warning"})

		InvoiceCalculationTotal = registerOrReuse(reg, InvoiceCalculationTotal)
		InvoiceRecalculationTotal = registerOrReuse(reg, InvoiceRecalculationTotal)
		InvoiceRecalculationDifference = registerOrReuse(reg, InvoiceRecalculationDifference)
		PaymentScheduleTotal = registerOrReuse(reg, PaymentScheduleTotal)
		PaymentApplicationTotal = registerOrReuse(reg, PaymentApplicationTotal)
		InvoiceWarningsTotal = registerOrReuse(reg, InvoiceWarningsTotal)
	})
}

// CountResult increments counter for result when the counter is registered.
func CountResult(counter *prometheus.CounterVec, result string) {
	if counter != nil {
		counter.WithLabelValues(result).Inc()
	}
}
