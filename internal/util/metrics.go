package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentIntentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_created_total",
		Help: "Total number of payment intents created at the processor",
	})

	OrdersReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Total number of succeeded payment intents turned into orders",
	})

	ReconciliationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_failed_total",
		Help: "Total number of reconciliation attempts that did not commit",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of processor webhook events received",
	}, []string{"type"})

	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Total number of webhook events skipped as already processed",
	})

	ProcessorRequestsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processor_requests_failed_total",
		Help: "Total number of failed requests to the payment processor",
	}, []string{"operation"})
)
